package handlers

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/services"
)

const multipartMemory = 8 << 20

// rawContentTypes are accepted as a request body holding the table itself.
var rawContentTypes = map[string]bool{
	"":                          true,
	"text/csv":                  true,
	"text/plain":                true,
	"text/tab-separated-values": true,
	"application/octet-stream":  true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// readUpload extracts the raw table from a request: a multipart "file"
// part, a "paste" form field or the raw body. The delimiter comes from the
// "delimiter" query or form value, falling back to def.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64, def services.Delimiter) (services.RawInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil && r.Header.Get("Content-Type") != "" {
		return services.RawInput{}, errors.BadRequestWrap(err, "malformed Content-Type header")
	}

	in := services.RawInput{Filename: r.URL.Query().Get("filename")}
	switch {
	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return services.RawInput{}, uploadError(err, "malformed multipart upload")
		}
		if file, header, err := r.FormFile("file"); err == nil {
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return services.RawInput{}, uploadError(err, "cannot read uploaded file")
			}
			in.Data = data
			in.Filename = filepath.Base(header.Filename)
		} else {
			in.Data = []byte(r.FormValue("paste"))
		}
	case mediaType == "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return services.RawInput{}, uploadError(err, "malformed form")
		}
		in.Data = []byte(r.PostFormValue("paste"))
	case rawContentTypes[mediaType]:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return services.RawInput{}, uploadError(err, "cannot read request body")
		}
		in.Data = data
	default:
		return services.RawInput{}, errors.UnsupportedMedia("unsupported content type " + mediaType)
	}

	delimName := r.URL.Query().Get("delimiter")
	if delimName == "" {
		delimName = r.FormValue("delimiter")
	}
	in.Delimiter = def
	if strings.TrimSpace(delimName) != "" {
		delim, err := services.ParseDelimiter(delimName)
		if err != nil {
			return services.RawInput{}, errors.ValidationWrap(err, "invalid delimiter").WithDetails(err.Error())
		}
		in.Delimiter = delim
	}
	return in, nil
}

func uploadError(err error, message string) error {
	if mapped := requestError(err); mapped != err {
		return mapped
	}
	return errors.BadRequestWrap(err, message)
}
