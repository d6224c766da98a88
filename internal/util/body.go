package util

import (
	"bytes"
	"io"
	"net/http"
)

// CloneBody reads up to limit bytes of the request body and replaces
// r.Body with a reader over the same bytes. A body longer than limit
// yields an *http.MaxBytesError; the bytes read so far are still put back.
func CloneBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	var buf bytes.Buffer
	var err error
	if limit > 0 {
		// one extra byte tells "exactly limit" apart from "over limit"
		_, err = io.Copy(&buf, io.LimitReader(r.Body, limit+1))
		if err == nil && int64(buf.Len()) > limit {
			err = &http.MaxBytesError{Limit: limit}
		}
	} else {
		_, err = io.Copy(&buf, r.Body)
	}
	_ = r.Body.Close()

	data := buf.Bytes()
	r.Body = io.NopCloser(bytes.NewReader(data))
	r.ContentLength = int64(len(data))
	return data, err
}
