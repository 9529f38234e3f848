package mg

import (
	"bytes"
)

type ErrorList []error

func (el ErrorList) First() error {
	for _, e := range el {
		if e != nil {
			return e
		}
	}
	return nil
}

func (el ErrorList) Filter() ErrorList {
	if len(el) == 0 {
		return nil
	}
	res := make(ErrorList, 0, len(el))
	for _, e := range el {
		if e != nil {
			res = append(res, e)
		}
	}
	return res
}

// Err returns nil if the list has no non-nil errors,
// the only error if there is exactly one, and the filtered list otherwise.
func (el ErrorList) Err() error {
	l := el.Filter()
	switch len(l) {
	case 0:
		return nil
	case 1:
		return l[0]
	default:
		return l
	}
}

// Unwrap returns the non-nil errors so errors.Is and errors.As see each of them.
func (el ErrorList) Unwrap() []error {
	return el.Filter()
}

func (el ErrorList) Error() string {
	buf := &bytes.Buffer{}
	for _, e := range el {
		if e == nil {
			continue
		}
		if buf.Len() != 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(e.Error())
	}
	return buf.String()
}
