package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sensiblebit/efirma"
	"github.com/sensiblebit/efirma/internal"
)

// formOverhead covers the non-file parts of a multipart request.
const formOverhead = 64 << 10

const maxJSONBodySize = 16 << 20

// CertPreview handles POST /cert-preview with a multipart "cer" upload.
func (a *API) CertPreview(w http.ResponseWriter, r *http.Request) {
	if err := a.parseUploads(w, r, 1); err != nil {
		mapError(w, err)
		return
	}
	cer, err := a.readUpload(r, "cer")
	if err != nil {
		mapError(w, err)
		return
	}

	c, err := efirma.LoadCertificate(cer)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, internal.NewPreview(c))
}

// ValidateEFirma handles POST /efirma with multipart "cer" and "key" uploads
// and the "passphrase" and "rfc" fields. A certificate outside its validity
// window answers 400 with the full report.
func (a *API) ValidateEFirma(w http.ResponseWriter, r *http.Request) {
	if err := a.parseUploads(w, r, 2); err != nil {
		mapError(w, err)
		return
	}
	cer, key, err := a.readPair(r)
	if err != nil {
		mapError(w, err)
		return
	}

	report, err := efirma.Validate(efirma.ValidateInput{
		Certificate:     cer,
		PrivateKey:      key,
		Passphrase:      r.FormValue("passphrase"),
		ClaimedIdentity: r.FormValue("rfc"),
		Now:             a.now(),
	})
	if err != nil {
		mapError(w, err)
		return
	}

	resp := internal.NewValidationResponse(report)
	if report.Validity != efirma.Valid {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// PackPKCS12 handles POST /pkcs12 with multipart "cer" and "key" uploads and
// the "passphrase" field. The optional "format" field selects p12 or jks.
func (a *API) PackPKCS12(w http.ResponseWriter, r *http.Request) {
	if err := a.parseUploads(w, r, 2); err != nil {
		mapError(w, err)
		return
	}
	cer, key, err := a.readPair(r)
	if err != nil {
		mapError(w, err)
		return
	}

	format := a.format
	if v := r.FormValue("format"); v != "" {
		if format, err = efirma.ParseContainerFormat(v); err != nil {
			mapError(w, err)
			return
		}
	}

	if a.exportPassword == nil {
		mapError(w, errors.New("export password is not configured"))
		return
	}
	buf, err := a.exportPassword.Open()
	if err != nil {
		mapError(w, fmt.Errorf("opening export password: %w", err))
		return
	}
	defer buf.Destroy()

	res, err := efirma.Pack(efirma.PackInput{
		Certificate:      cer,
		PrivateKey:       key,
		ImportPassphrase: r.FormValue("passphrase"),
		ExportPassword:   buf.String(),
		FriendlyName:     a.friendlyName,
		Format:           format,
		Now:              a.now(),
	})
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, internal.PackResponse{OK: true, Base64: res.Base64, Metadata: res.Metadata})
}

// DecodePKCS12 handles POST /pkcs12/decode with a JSON body
// {"base64": ..., "password": ...}.
func (a *API) DecodePKCS12(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	var req internal.UnpackRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			mapError(w, fmt.Errorf("%w: request body exceeds %d bytes", errUploadTooLarge, maxBytesErr.Limit))
			return
		}
		mapError(w, fmt.Errorf("%w: invalid request body", efirma.ErrMalformedInput))
		return
	}
	if err := a.validate.Struct(req); err != nil {
		mapError(w, missingFields(err))
		return
	}

	res, err := efirma.UnpackBase64(req.Base64, req.Password)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, internal.UnpackResponse{OK: true, Metadata: res.Metadata})
}

// parseUploads caps the body at files uploads plus form overhead and parses
// the multipart form.
func (a *API) parseUploads(w http.ResponseWriter, r *http.Request, files int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, files*a.maxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(files*a.maxUploadBytes + formOverhead); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("%w: request body exceeds %d bytes", errUploadTooLarge, maxBytesErr.Limit)
		}
		return fmt.Errorf("%w: invalid multipart form", efirma.ErrMalformedInput)
	}
	return nil
}

// readPair reads the "cer" and "key" uploads.
func (a *API) readPair(r *http.Request) (cer, key []byte, err error) {
	if cer, err = a.readUpload(r, "cer"); err != nil {
		return nil, nil, err
	}
	if key, err = a.readUpload(r, "key"); err != nil {
		return nil, nil, err
	}
	return cer, key, nil
}

// readUpload returns the contents of the file part named field. Only .cer
// and .key file names are accepted.
func (a *API) readUpload(r *http.Request, field string) ([]byte, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, fmt.Errorf("%w: %s", efirma.ErrMissingField, field)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", efirma.ErrMalformedInput, field, err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".cer", ".key":
	default:
		return nil, fmt.Errorf("%w: %s: only .cer and .key files are accepted", efirma.ErrMalformedInput, header.Filename)
	}
	if header.Size > a.maxUploadBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", errUploadTooLarge, header.Filename, a.maxUploadBytes)
	}

	data, err := io.ReadAll(io.LimitReader(file, a.maxUploadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", efirma.ErrMalformedInput, field, err)
	}
	return data, nil
}

// missingFields converts a validator failure into ErrMissingField naming the
// first offending field.
func missingFields(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%w: %s", efirma.ErrMissingField, verrs[0].Field())
	}
	return fmt.Errorf("%w: %v", efirma.ErrMalformedInput, err)
}
