package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

type CodeErrorI interface {
	ECode() int
	EMsg() string
	DDetail() string
	error
}

func NewCodeError(code int, msg string) CodeError {
	return CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e *CodeError) ECode() int      { return e.Code }
func (e *CodeError) EMsg() string    { return e.Msg }
func (e *CodeError) DDetail() string { return e.Detail }

func (e *CodeError) WithDetail(detail string) CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

// Wrap returns a copy of e carrying the current stack.
func (e *CodeError) Wrap() error {
	return pkgerrors.WithStack(e.clone())
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: e.Detail,
	}
}

func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	retErr := e.clone()
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if retErr.Detail == "" {
			retErr.Detail = detail
		} else {
			retErr.Detail += ", " + detail
		}
	}
	return pkgerrors.WithStack(retErr)
}

// Is reports whether err carries a CodeError with the same code as e.
func (e *CodeError) Is(err error) bool {
	if e == nil || err == nil {
		return e == nil && err == nil
	}
	var codeErr *CodeError
	if !errors.As(err, &codeErr) {
		return false
	}
	return codeErr.Code == e.Code
}

const initialCapacity = 3

func (e *CodeError) Error() string {
	v := make([]string, 0, initialCapacity)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}

// Code extracts the code of the first CodeError in err's chain, 0 if none.
func Code(err error) int {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return 0
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithMessage(pkgerrors.WithStack(err), toString(msg, kv))
}

func New(msg string, kv ...any) error {
	return pkgerrors.New(toString(msg, kv))
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprint(kv[i]))
		b.WriteString("=")
		if i+1 < len(kv) {
			b.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			b.WriteString("MISSING")
		}
	}
	return b.String()
}
