package descriptor

import (
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/Iron-Ham/releasetrain/internal/errors"
)

var encodingDeclRegex = regexp.MustCompile(`^\s*<\?xml[^?]*?\bencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// declaredEncoding returns the encoding named by the XML declaration, or ""
// when there is none.
func declaredEncoding(content []byte) string {
	if m := encodingDeclRegex.FindSubmatch(content); m != nil {
		return string(m[1])
	}
	return ""
}

// rawOffsets maps byte offsets of transcoded content back to the original
// content. A nil map is the identity.
type rawOffsets []int64

func (o rawOffsets) span(s Span) Span {
	if o == nil || !s.Valid() {
		return s
	}
	return Span{Start: o[s.Start], End: o[s.End]}
}

// utf8Source returns content as UTF-8 for the XML decoder. Single-byte
// charsets are transcoded and the returned offsets translate decoder
// positions back to the original bytes, so edits land in the file as it
// is stored.
func utf8Source(path string, content []byte) ([]byte, rawOffsets, error) {
	label := strings.ToLower(declaredEncoding(content))
	switch label {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return content, nil, nil
	}

	enc, err := ianaindex.IANA.Encoding(label)
	cm, ok := enc.(*charmap.Charmap)
	if err != nil || !ok {
		return nil, nil, errors.Wrapf(errors.ErrMalformedDescriptor, "unsupported encoding %q in %s", label, path)
	}

	src := make([]byte, 0, len(content))
	offsets := make(rawOffsets, 0, len(content)+1)
	for i, b := range content {
		n := len(src)
		src = utf8.AppendRune(src, cm.DecodeByte(b))
		for range len(src) - n {
			offsets = append(offsets, int64(i))
		}
	}
	offsets = append(offsets, int64(len(content)))
	return src, offsets, nil
}

// passThrough satisfies xml.Decoder.CharsetReader for input utf8Source
// already converted.
func passThrough(_ string, in io.Reader) (io.Reader, error) {
	return in, nil
}
