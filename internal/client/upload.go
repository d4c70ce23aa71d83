package client

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// Upload streams r as a multipart form file under field and decodes the
// envelope's data into out.
func (c *Client) Upload(ctx context.Context, path, field, filename string, r io.Reader, out any) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("create form file: %w", err))
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(fmt.Errorf("copy %s: %w", filename, err))
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        path,
		body:        pr,
		contentType: mw.FormDataContentType(),
		timeout:     c.uploadTimeout,
	}, out)
	// unblock the writer if the request never consumed the body
	pr.CloseWithError(io.ErrClosedPipe)
	return err
}
