package ssh

import (
	"bufio"
	"bytes"
	"io"
)

const maxVersionLineLength = 255

// exchangeVersions writes our identification line to w and reads the
// peer's from r, discarding any banner lines that precede it (spec
// section 6: "any preceding lines from the peer not beginning with
// SSH- are banner text and are discarded"). It returns the peer's
// line without its trailing CR/LF, for use in the KEX exchange hash.
//
// r must be the same buffered reader the transport goes on to use for
// every later packet read: a fresh bufio.Reader here would risk
// pulling the start of the first KEXINIT into a buffer that then gets
// discarded once this function returns.
func exchangeVersions(w io.Writer, r *bufio.Reader, clientVersion string) (serverVersion []byte, err error) {
	if _, err := io.WriteString(w, clientVersion+"\r\n"); err != nil {
		return nil, &ConnectionError{Op: "write version", Err: err}
	}
	for {
		line, err := readVersionLine(r)
		if err != nil {
			return nil, &ProtocolError{Reason: "version exchange: " + err.Error()}
		}
		if bytes.HasPrefix(line, []byte("SSH-")) {
			return line, nil
		}
		// banner line; keep scanning for the real identification line
	}
}

func readVersionLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == '\n' {
			break
		}
		line = append(line, b)
		if len(line) > maxVersionLineLength {
			return nil, &ProtocolError{Reason: "version line too long"}
		}
	}
	return bytes.TrimSuffix(line, []byte("\r")), nil
}
