package scout

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/scout-sync/internal/errors"
)

// Encoding selects the payload representation.
type Encoding int

const (
	EncodingText Encoding = iota
	EncodingBase64
)

func (e Encoding) String() string {
	if e == EncodingBase64 {
		return "base64"
	}

	return "text"
}

// EncodingFromBool maps the persisted b64 flag to an Encoding.
func EncodingFromBool(b64 bool) Encoding {
	if b64 {
		return EncodingBase64
	}

	return EncodingText
}

// IOError is a file read failure with a message safe to show in the UI.
type IOError struct {
	Path string
	Msg  string
	Err  error
}

func (e *IOError) Error() string { return e.Msg }

// Unwrap exposes both the ErrIO sentinel and the underlying cause.
func (e *IOError) Unwrap() []error { return []error{apperrors.ErrIO, e.Err} }

var errInvalidUTF8 = errors.New("stream did not contain valid UTF-8")

// osSuffix matches the platform detail some error strings carry, such
// as "(os error 2)".
var osSuffix = regexp.MustCompile(`\s*\(os.*$`)

// CleanOSError reduces an OS error to a short message: path-bearing
// wrappers are dropped and any trailing platform detail is removed.
func CleanOSError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()

	var pe *fs.PathError
	if errors.As(err, &pe) {
		msg = pe.Err.Error()
	}

	msg = strings.TrimSpace(osSuffix.ReplaceAllString(msg, ""))
	if msg == "" {
		return "file could not be read"
	}

	return msg
}

// Encode reads the file at path and returns its payload in the given
// encoding together with the file's base name. Base64 accepts any bytes;
// text mode rejects content that is not valid UTF-8.
func Encode(path string, enc Encoding) (payload, name string, err error) {
	name = filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", name, &IOError{Path: path, Msg: CleanOSError(err), Err: err}
	}

	if enc == EncodingBase64 {
		return base64.StdEncoding.EncodeToString(data), name, nil
	}

	if !utf8.Valid(data) {
		return "", name, &IOError{Path: path, Msg: errInvalidUTF8.Error(), Err: errInvalidUTF8}
	}

	return string(data), name, nil
}

// errorStatus converts an encode failure to the status shown to the UI.
func errorStatus(err error) Status {
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return Status{Kind: StatusError, Message: ioErr.Msg}
	}

	return Status{Kind: StatusError, Message: fmt.Sprintf("file could not be read: %s", CleanOSError(err))}
}
