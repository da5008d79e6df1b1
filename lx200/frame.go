package lx200

// The wire protocol frames ASCII commands between a ':' start marker
// and a '#' terminator. A single TCP read may carry zero, one or many
// complete frames, or end mid-frame; bytes outside a frame are
// discarded. The ACK probe byte 0x06 forms a frame of its own.

const (
	ack        = 0x06
	frameStart = ':'
	frameEnd   = '#'
)

// scanFrames is a bufio.SplitFunc producing one frame per token. A
// token is either the single ACK byte or ":...#" including both
// delimiters. Incomplete trailing frames are buffered until the
// terminator arrives.
func scanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case ack:
			return i + 1, data[i : i+1], nil
		case frameStart:
			for j := i + 1; j < len(data); j++ {
				if data[j] == frameEnd {
					return j + 1, data[i : j+1], nil
				}
			}
			if atEOF {
				// Partial frame at end of stream; drop it.
				return len(data), nil, nil
			}
			// Skip leading garbage, wait for the terminator.
			return i, nil, nil
		default:
			// Stray bytes between frames, including the lone '#'
			// some clients append. Ignore.
		}
	}
	return len(data), nil, nil
}
