package handlers

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/services"
)

const (
	defaultTableLimit = 100
	maxFilterBody     = 1 << 20
)

type groupedQuery struct {
	Dimension string `query:"dimension" validate:"required,oneof=promotion position seasonal section season material origin"`
	Measure   string `query:"measure" validate:"omitempty,oneof=price sales_volume revenue"`
	Order     string `query:"order" validate:"omitempty,oneof=value_desc category first_seen"`
}

type grouped2Query struct {
	Outer   string `query:"outer" validate:"required,oneof=promotion position seasonal section season material origin"`
	Inner   string `query:"inner" validate:"required,oneof=promotion position seasonal section season material origin,nefield=Outer"`
	Measure string `query:"measure" validate:"omitempty,oneof=price sales_volume revenue"`
}

type topQuery struct {
	Measure string `query:"measure" validate:"omitempty,oneof=price sales_volume revenue"`
	N       int    `query:"n" validate:"gte=0,lte=1000"`
}

type modeQuery struct {
	Dimension string `query:"dimension" validate:"required,oneof=promotion position seasonal section season material origin"`
}

type tableQuery struct {
	Sort    string   `query:"sort" validate:"omitempty,oneof=price sales_volume revenue"`
	Desc    bool     `query:"desc"`
	Columns []string `query:"columns" validate:"dive,required"`
	Limit   int      `query:"limit" validate:"gte=0,lte=10000"`
}

type exportQuery struct {
	tableQuery
	Format string `query:"format" validate:"omitempty,oneof=csv tsv xlsx"`
}

// filterUpdate is the body of PUT /filters. Omitted fields keep their
// current value.
type filterUpdate struct {
	Selections map[models.Dimension][]string `json:"selections" validate:"omitempty,dive,keys,oneof=promotion position seasonal section season material origin,endkeys"`
	PriceMin   *float64                      `json:"price_min" validate:"omitempty,gte=0"`
	PriceMax   *float64                      `json:"price_max" validate:"omitempty,gte=0"`
}

func (u filterUpdate) apply(current models.FilterSpec) models.FilterSpec {
	next := current.Clone()
	for dim, values := range u.Selections {
		next.Selections[dim] = append([]string{}, values...)
	}
	if u.PriceMin != nil {
		next.PriceMin = *u.PriceMin
	}
	if u.PriceMax != nil {
		next.PriceMax = *u.PriceMax
	}
	return next
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"query", "json"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

// validationError turns validator output into a VALIDATION_ERROR with one
// detail line per field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.ValidationWrap(err, "invalid request")
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, formatFieldError(fe))
	}
	return errors.ValidationWrap(err, "invalid request parameters").WithDetails(strings.Join(details, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, strings.ToLower(fe.Param()))
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func parseGroupedQuery(q url.Values) groupedQuery {
	return groupedQuery{
		Dimension: q.Get("dimension"),
		Measure:   q.Get("measure"),
		Order:     q.Get("order"),
	}
}

func parseGrouped2Query(q url.Values) grouped2Query {
	return grouped2Query{
		Outer:   q.Get("outer"),
		Inner:   q.Get("inner"),
		Measure: q.Get("measure"),
	}
}

func parseTopQuery(q url.Values, defaultN int) (topQuery, error) {
	n, err := intParam(q, "n", defaultN)
	if err != nil {
		return topQuery{}, err
	}
	return topQuery{Measure: q.Get("measure"), N: n}, nil
}

func parseTableQuery(q url.Values) (tableQuery, error) {
	limit, err := intParam(q, "limit", defaultTableLimit)
	if err != nil {
		return tableQuery{}, err
	}
	desc := true
	if raw := q.Get("desc"); raw != "" {
		desc, err = strconv.ParseBool(raw)
		if err != nil {
			return tableQuery{}, errors.BadRequestWrap(err, "desc must be true or false")
		}
	}
	var columns []string
	if raw := q.Get("columns"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			columns = append(columns, strings.TrimSpace(c))
		}
	}
	return tableQuery{Sort: q.Get("sort"), Desc: desc, Columns: columns, Limit: limit}, nil
}

func parseExportQuery(q url.Values) (exportQuery, error) {
	table, err := parseTableQuery(q)
	if err != nil {
		return exportQuery{}, err
	}
	if q.Get("sort") == "" && q.Get("desc") == "" {
		table.Desc = false
	}
	return exportQuery{tableQuery: table, Format: q.Get("format")}, nil
}

// options converts the query into export options. Without an explicit sort
// the detailed table lists best sellers first.
func (t tableQuery) options(defaultSort models.Measure) services.ExportOptions {
	sort := models.Measure(t.Sort)
	if sort == "" {
		sort = defaultSort
	}
	return services.ExportOptions{Columns: t.Columns, SortBy: sort, Descending: t.Desc}
}

func intParam(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.BadRequestWrap(err, key+" must be an integer")
	}
	return n, nil
}

func measureOr(s string, def models.Measure) models.Measure {
	if s == "" {
		return def
	}
	return models.Measure(s)
}

// requestError maps domain errors to the transport envelope.
func requestError(err error) error {
	var (
		appErr    *errors.AppError
		loadErr   *services.LoadError
		filterErr *services.FilterError
		tooLarge  *http.MaxBytesError
	)
	switch {
	case stderrors.As(err, &appErr):
		return appErr
	case stderrors.As(err, &tooLarge):
		return errors.PayloadTooLarge(fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
	case stderrors.As(err, &loadErr):
		return errors.LoadWrap(err, "could not read the table")
	case stderrors.As(err, &filterErr):
		return errors.ValidationWrap(err, "invalid filters").WithDetails(filterErr.Error())
	case stderrors.Is(err, services.ErrUnknownColumn):
		return errors.ValidationWrap(err, "invalid columns").WithDetails(err.Error())
	case stderrors.Is(err, services.ErrSessionNotFound):
		return errors.Wrap(err, errors.CodeNotFound, "session not found")
	case stderrors.Is(err, services.ErrNoSeedDataset):
		return errors.Wrap(err, errors.CodeNotFound, "no sample dataset is configured")
	case stderrors.Is(err, services.ErrTooManySessions):
		return errors.Wrap(err, errors.CodeServiceUnavail, "too many active sessions, try again later")
	default:
		return err
	}
}
