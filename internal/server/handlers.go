package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"docintake/internal/ingest"
	"docintake/internal/model"
	"docintake/internal/textextract"
)

type documentResponse struct {
	Path          string `json:"path"`
	DocType       string `json:"doc_type"`
	Depth         int    `json:"depth"`
	SourceArchive string `json:"source_archive,omitempty"`
	Text          string `json:"text,omitempty"`
	TextError     string `json:"text_error,omitempty"`
}

type uploadResponse struct {
	RunID          string             `json:"run_id"`
	Archive        string             `json:"archive"`
	Format         string             `json:"format"`
	SizeBytes      int64              `json:"size_bytes"`
	SHA256         string             `json:"sha256"`
	ExtractedCount int                `json:"extracted_count"`
	Documents      []documentResponse `json:"documents"`
}

// handleUpload accepts a multipart "file" field holding one archive and
// returns the documents found in it. extract_text=true adds their text.
func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithMessage(c, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		abortWithMessage(c, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	name := filepath.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		abortWithMessage(c, http.StatusBadRequest, "uploaded file has no name")
		return
	}
	withText, _ := strconv.ParseBool(c.DefaultPostForm("extract_text", c.Query("extract_text")))

	tmp, err := os.CreateTemp(s.opts.UploadDir, "upload-*")
	if err != nil {
		handleError(c, err)
		return
	}
	uploadPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(uploadPath) }()

	if err := c.SaveUploadedFile(header, uploadPath); err != nil {
		handleError(c, err)
		return
	}

	ctx := c.Request.Context()
	var resp uploadResponse
	err = s.opts.Processor.ProcessWith(ctx, uploadPath, name, func(res *ingest.Result) error {
		resp = uploadResponse{
			RunID:          res.RunID,
			Archive:        res.Archive.Name,
			Format:         string(res.Archive.Format),
			SizeBytes:      res.SizeBytes,
			SHA256:         res.SHA256,
			ExtractedCount: len(res.Extracted),
			Documents:      make([]documentResponse, 0, len(res.Documents)),
		}
		for _, doc := range res.Documents {
			resp.Documents = append(resp.Documents, documentResponse{
				Path:          doc.RelPath,
				DocType:       doc.DocType,
				Depth:         doc.Depth,
				SourceArchive: doc.SourceArchive,
			})
		}
		if !withText || s.opts.Extractor == nil {
			return nil
		}
		texts, err := textextract.ExtractAll(ctx, s.opts.Extractor, res.Documents, s.opts.TextWorkers)
		if err != nil {
			return err
		}
		for i, t := range texts {
			resp.Documents[i].Text = t.Text
			if t.Err != nil {
				resp.Documents[i].TextError = t.Err.Error()
			}
		}
		return nil
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleListRuns returns recent runs, newest first.
func (s *Server) handleListRuns(c *gin.Context) {
	if s.opts.Store == nil {
		abortWithMessage(c, http.StatusNotFound, "run history is disabled")
		return
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil || limit < 1 || limit > 500 {
		abortWithMessage(c, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		abortWithMessage(c, http.StatusBadRequest, "offset must not be negative")
		return
	}

	runs, err := s.opts.Store.ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "limit": limit, "offset": offset})
}

// handleGetRun returns one run with its document list.
func (s *Server) handleGetRun(c *gin.Context) {
	if s.opts.Store == nil {
		abortWithMessage(c, http.StatusNotFound, "run history is disabled")
		return
	}
	run, err := s.opts.Store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			abortWithMessage(c, http.StatusNotFound, "run not found")
			return
		}
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
