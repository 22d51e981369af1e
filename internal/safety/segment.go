package safety

import "strings"

// Segment is one command invocation within a compound or piped command line.
// Tokens are whitespace-delimited with quotes resolved; HasRedirect is set
// when an unquoted > or >> appears anywhere in the segment, including
// fd-prefixed forms like 2>.
type Segment struct {
	Tokens      []string
	HasRedirect bool
}

// Command returns the command name of the segment: the basename of the first
// token, so /bin/rm and rm classify the same way.
func (s Segment) Command() string {
	if len(s.Tokens) == 0 {
		return ""
	}
	name := s.Tokens[0]
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// quote states for the tokenizer.
const (
	stateUnquoted = iota
	stateSingle
	stateDouble
)

// segment splits raw command text into evaluable segments. Lines are
// processed independently; empty lines and comment lines contribute nothing.
// Within a line, tokens are split on unquoted ; && || | boundaries. hasTee
// reports whether any segment invokes tee, which always implies a file write
// regardless of its position in a pipeline.
//
// An unterminated quote swallows the rest of the line: no separator or
// redirect is recognized past it, so ambiguous quoting can never split a
// command into segments that would dodge the rule table.
func segment(raw string) (segs []Segment, hasTee bool) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		segs = append(segs, segmentLine(line)...)
	}
	for _, s := range segs {
		if s.Command() == "tee" {
			hasTee = true
			break
		}
	}
	return segs, hasTee
}

// segmentLine tokenizes a single line with a three-state quote machine and
// splits the token stream on unquoted separators. Linear scan, no regexp.
func segmentLine(line string) []Segment {
	var (
		segs    []Segment
		cur     Segment
		tok     strings.Builder
		started bool // a token is in progress (distinguishes "" from nothing)
		state   = stateUnquoted
	)

	flushToken := func() {
		if started {
			cur.Tokens = append(cur.Tokens, tok.String())
			tok.Reset()
			started = false
		}
	}
	flushSegment := func() {
		flushToken()
		if len(cur.Tokens) > 0 || cur.HasRedirect {
			segs = append(segs, cur)
		}
		cur = Segment{}
	}

	for i := 0; i < len(line); i++ {
		ch := line[i]

		switch state {
		case stateSingle:
			if ch == '\'' {
				state = stateUnquoted
			} else {
				tok.WriteByte(ch)
			}
			continue
		case stateDouble:
			if ch == '\\' && i+1 < len(line) && (line[i+1] == '"' || line[i+1] == '\\') {
				tok.WriteByte(line[i+1])
				i++
				continue
			}
			if ch == '"' {
				state = stateUnquoted
			} else {
				tok.WriteByte(ch)
			}
			continue
		}

		// Unquoted.
		switch ch {
		case '\'':
			state = stateSingle
			started = true
		case '"':
			state = stateDouble
			started = true
		case ' ', '\t', '\r':
			flushToken()
		case ';':
			flushSegment()
		case '|':
			if i+1 < len(line) && line[i+1] == '|' {
				i++
			}
			flushSegment()
		case '&':
			if i+1 < len(line) && line[i+1] == '&' {
				i++
				flushSegment()
			} else {
				// A lone & (background job) is not a separator here;
				// keep it in the token stream.
				tok.WriteByte(ch)
				started = true
			}
		case '>':
			// Any unquoted output redirect implies a file write, whatever
			// command produced the output. The fd prefix (2>) is part of
			// the preceding token and needs no special handling; >> is
			// collapsed by skipping the second >.
			cur.HasRedirect = true
			if i+1 < len(line) && line[i+1] == '>' {
				i++
			}
			flushToken()
		default:
			tok.WriteByte(ch)
			started = true
		}
	}

	// End of line: an open quote ends here (conservative: the span stayed
	// one token), and the trailing segment is flushed.
	flushSegment()
	return segs
}
