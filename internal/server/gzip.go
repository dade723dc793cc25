package server

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"net"
	"net/http"
	"strings"

	"yamdb/internal/domain/errors"

	"github.com/gin-gonic/gin"
)

const minCompressSize = 1024

var compressiblePrefixes = []string{
	"application/json",
	"application/problem+json",
	"text/plain",
	"text/html",
}

// gzipBody closes both the gzip stream and the original request body.
type gzipBody struct {
	*gzip.Reader
	orig io.Closer
}

func (b *gzipBody) Close() error {
	gzErr := b.Reader.Close()
	if err := b.orig.Close(); err != nil {
		return err
	}
	return gzErr
}

// GzipRequestDecompress accepts gzip-encoded JSON bodies.
func GzipRequestDecompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !strings.Contains(strings.ToLower(ctx.GetHeader("Content-Encoding")), "gzip") {
			ctx.Next()
			return
		}
		gr, err := gzip.NewReader(ctx.Request.Body)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errors.ErrInvalidGzipRequest.Error()})
			return
		}
		ctx.Request.Body = &gzipBody{Reader: gr, orig: ctx.Request.Body}
		ctx.Request.Header.Del("Content-Encoding")
		ctx.Request.Header.Del("Content-Length")
		ctx.Request.ContentLength = -1
		ctx.Next()
	}
}

// gzipWriter buffers the first minCompressSize bytes and only switches to
// gzip once the body is large enough and of a compressible type.
type gzipWriter struct {
	gin.ResponseWriter
	gz     *gzip.Writer
	buf    bytes.Buffer
	status int
}

func (w *gzipWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *gzipWriter) Write(data []byte) (int, error) {
	if w.gz != nil {
		n, err := w.gz.Write(data)
		if err != nil {
			return n, errors.ErrGzipCompressionFailed
		}
		return n, nil
	}

	w.buf.Write(data)
	if w.buf.Len() >= minCompressSize && w.compressible() {
		w.startGzip()
		if _, err := w.gz.Write(w.buf.Bytes()); err != nil {
			return 0, errors.ErrGzipCompressionFailed
		}
		w.buf.Reset()
	}
	return len(data), nil
}

func (w *gzipWriter) WriteString(s string) (int, error) { return w.Write([]byte(s)) }

func (w *gzipWriter) compressible() bool {
	switch w.status {
	case http.StatusNoContent, http.StatusNotModified, http.StatusPartialContent:
		return false
	}
	h := w.ResponseWriter.Header()
	if h.Get("Content-Encoding") != "" {
		return false
	}
	ct := strings.ToLower(h.Get("Content-Type"))
	for _, prefix := range compressiblePrefixes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

func (w *gzipWriter) startGzip() {
	h := w.ResponseWriter.Header()
	h.Del("Content-Length")
	h.Set("Content-Encoding", "gzip")
	w.gz = gzip.NewWriter(w.ResponseWriter)
}

// finish flushes whatever was buffered, compressed or not.
func (w *gzipWriter) finish() error {
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			return errors.ErrGzipCompressionFailed
		}
		return nil
	}
	if w.buf.Len() == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.buf.Bytes())
	w.buf.Reset()
	return err
}

func (w *gzipWriter) Flush() {
	if w.gz != nil {
		_ = w.gz.Flush()
	} else if w.buf.Len() > 0 {
		_, _ = w.ResponseWriter.Write(w.buf.Bytes())
		w.buf.Reset()
	}
	w.ResponseWriter.Flush()
}

func (w *gzipWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) { return w.ResponseWriter.Hijack() }

// GzipResponseCompress compresses responses for clients that accept gzip.
func GzipResponseCompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method == http.MethodHead ||
			!strings.Contains(strings.ToLower(ctx.GetHeader("Accept-Encoding")), "gzip") {
			ctx.Next()
			return
		}

		h := ctx.Writer.Header()
		if vary := h.Get("Vary"); vary == "" {
			h.Set("Vary", "Accept-Encoding")
		} else if !strings.Contains(vary, "Accept-Encoding") {
			h.Set("Vary", vary+", Accept-Encoding")
		}

		gw := &gzipWriter{ResponseWriter: ctx.Writer, status: http.StatusOK}
		ctx.Writer = gw
		ctx.Next()

		if err := gw.finish(); err != nil {
			_ = ctx.Error(err)
		}
	}
}
