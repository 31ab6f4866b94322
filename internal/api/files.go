package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cwoolley/playbook/internal/batch"
	"github.com/cwoolley/playbook/internal/docx"
	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/extract"
	"github.com/cwoolley/playbook/internal/logger"
	"github.com/cwoolley/playbook/internal/query"
	"github.com/cwoolley/playbook/internal/report"
)

// decodeFileData accepts plain base64 or a data URL.
func decodeFileData(field, s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, domain.NewValidation(field, "is not valid base64")
	}
	return data, nil
}

type extractRequest struct {
	FileData string `json:"fileData"`
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName"`
}

type extractResponse struct {
	ExtractedText string `json:"extractedText"`
}

// upload reads the file from a multipart "file" field or a JSON body.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) (extractRequest, []byte, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
		if err := r.ParseMultipartForm(maxUploadBody); err != nil {
			return extractRequest{}, nil, domain.NewValidation("file", "could not read upload: "+err.Error())
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return extractRequest{}, nil, domain.NewValidation("file", "no file uploaded")
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, h.opts.MaxFileBytes+1))
		if err != nil {
			return extractRequest{}, nil, fmt.Errorf("read upload: %w", err)
		}
		req := extractRequest{FileName: hdr.Filename, MimeType: r.FormValue("mimeType")}
		if req.MimeType == "" {
			req.MimeType = hdr.Header.Get("Content-Type")
		}
		return req, data, nil
	}

	var req extractRequest
	if err := decodeJSON(w, r, maxUploadBody, &req); err != nil {
		return req, nil, err
	}
	if req.FileData == "" || req.MimeType == "" {
		return req, nil, domain.NewValidation("fileData", "and mimeType are required")
	}
	data, err := decodeFileData("fileData", req.FileData)
	return req, data, err
}

func (h *Handler) extractText(w http.ResponseWriter, r *http.Request) {
	req, data, err := h.upload(w, r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if int64(len(data)) > h.opts.MaxFileBytes {
		handleError(w, r, domain.ErrFileTooLarge)
		return
	}

	kind := domain.KindOf(req.MimeType, req.FileName)
	if kind.IsSpreadsheet() || kind == domain.KindUnsupported {
		handleError(w, r, domain.NewValidation("mimeType", "invalid file type, please upload a valid document file"))
		return
	}

	text, err := extract.ExtractBytes(kind, data)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, extractResponse{
		ExtractedText: extract.TrimHeader(text, h.opts.TrimMarker, h.opts.TrimMaxLines),
	})
}

type workbookUpload struct {
	FileName string `json:"fileName"`
	FileData string `json:"fileData"`
}

type processExcelRequest struct {
	Files []workbookUpload `json:"files"`
	Query string           `json:"query"`
}

type workbookOutcome struct {
	matches report.WorkbookMatches
	failure *report.Failure
}

func (h *Handler) processExcel(w http.ResponseWriter, r *http.Request) {
	var req processExcelRequest
	if err := decodeJSON(w, r, maxBatchBody, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if len(req.Files) == 0 {
		handleError(w, r, domain.NewValidation("files", "are required"))
		return
	}
	terms, err := query.Parse(req.Query)
	if err != nil {
		handleError(w, r, err)
		return
	}

	log := logger.FromContext(r.Context())
	outcomes, err := batch.Run(r.Context(), req.Files, h.opts.BatchSize, func(_ context.Context, _ int, f workbookUpload) workbookOutcome {
		fail := func(reason string) workbookOutcome {
			log.Warn("workbook failed", zap.String("file_name", f.FileName), zap.String("reason", reason))
			return workbookOutcome{failure: &report.Failure{FileName: f.FileName, Reason: reason}}
		}
		data, err := decodeFileData("fileData", f.FileData)
		if err != nil {
			return fail(err.Error())
		}
		if int64(len(data)) > h.opts.MaxFileBytes {
			return fail(domain.ErrFileTooLarge.Error())
		}
		m, err := report.MatchWorkbook(f.FileName, data, terms)
		if err != nil {
			return fail(err.Error())
		}
		return workbookOutcome{matches: m}
	}, nil)
	if err != nil {
		handleError(w, r, err)
		return
	}

	summary := report.SpreadsheetSummary{Query: query.Join(terms)}
	for _, o := range outcomes {
		if o.failure != nil {
			summary.Failures = append(summary.Failures, *o.failure)
			continue
		}
		summary.Workbooks = append(summary.Workbooks, o.matches)
	}
	if len(summary.Workbooks) == 0 {
		handleError(w, r, domain.ErrNoSpreadsheets)
		return
	}

	now := h.now()
	h.writeDocument(w, r, report.Filename(summary.Query, now), report.BuildSpreadsheetReport(summary, now))
}

type combineRequest struct {
	Files []report.CombinedFile `json:"files"`
	Query string                `json:"query"`
}

func (h *Handler) combineFiles(w http.ResponseWriter, r *http.Request) {
	var req combineRequest
	if err := decodeJSON(w, r, maxBatchBody, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if len(req.Files) == 0 {
		handleError(w, r, domain.NewValidation("files", "are required"))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		handleError(w, r, domain.ErrEmptyQuery)
		return
	}

	now := h.now()
	h.writeDocument(w, r, report.Filename(req.Query, now), report.BuildCombined(req.Query, req.Files, now))
}

func (h *Handler) writeDocument(w http.ResponseWriter, r *http.Request, name string, d *docx.Document) {
	data, err := d.Bytes()
	if err != nil {
		handleError(w, r, fmt.Errorf("render %s: %w", name, err))
		return
	}
	writeAttachment(w, name, docx.ContentType, data)
}

func writeAttachment(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
