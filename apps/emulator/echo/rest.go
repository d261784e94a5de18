package echoapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/baas"
	"github.com/trezcool/smis/core/backend"
)

const mimeObject = "application/vnd.pgrst.object+json"

var (
	reservedParams = map[string]bool{"select": true, "order": true, "limit": true, "offset": true, headerAPIKey: true}

	errRangeNotSatisfiable = backend.NewError(http.StatusRequestedRangeNotSatisfiable, "PGRST103", "Requested range not satisfiable")
)

type recordApi struct {
	svc *baas.RecordService
}

func registerRestAPI(g *echo.Group, svc *baas.RecordService) {
	api := recordApi{svc: svc}

	g.GET("/:table", api.selectRows)
	g.POST("/:table", api.insertRow)
	g.PATCH("/:table", api.updateRows)
	g.DELETE("/:table", api.deleteRows)
}

// preferences parses the Prefer header: "return=representation, count=exact".
func preferences(ctx echo.Context) map[string]string {
	prefs := make(map[string]string)
	for _, header := range ctx.Request().Header.Values(headerPrefer) {
		for _, pref := range strings.Split(header, ",") {
			if k, v, ok := strings.Cut(strings.TrimSpace(pref), "="); ok {
				prefs[k] = v
			}
		}
	}
	return prefs
}

func wantsObject(ctx echo.Context) bool {
	return strings.Contains(ctx.Request().Header.Get(echo.HeaderAccept), mimeObject)
}

func parseFilters(ctx echo.Context) ([]core.Filter, error) {
	var filters []core.Filter
	for field, values := range ctx.QueryParams() {
		if reservedParams[field] {
			continue
		}
		for _, v := range values {
			val, ok := strings.CutPrefix(v, "eq.")
			if !ok {
				return nil, backend.NewError(http.StatusBadRequest, "PGRST100", fmt.Sprintf("failed to parse filter (%s)", v))
			}
			filters = append(filters, core.Filter{Field: field, Value: val})
		}
	}
	return filters, nil
}

// parseRange reads the inclusive "from-to" Range header, or the limit & offset params.
func parseRange(ctx echo.Context) (*core.Range, error) {
	if header := ctx.Request().Header.Get(headerRange); header != "" {
		from, to, ok := strings.Cut(header, "-")
		if !ok {
			return nil, errRangeNotSatisfiable
		}
		f, err := strconv.Atoi(from)
		if err != nil {
			return nil, errRangeNotSatisfiable
		}
		t, err := strconv.Atoi(to)
		if err != nil {
			return nil, errRangeNotSatisfiable
		}
		return &core.Range{From: f, To: t + 1}, nil
	}

	limit, offset := ctx.QueryParam("limit"), ctx.QueryParam("offset")
	if limit == "" && offset == "" {
		return nil, nil
	}
	if limit == "" {
		return nil, errRangeNotSatisfiable
	}
	n, err := strconv.Atoi(limit)
	if err != nil {
		return nil, errRangeNotSatisfiable
	}
	var r core.Range
	if offset != "" {
		if r.From, err = strconv.Atoi(offset); err != nil {
			return nil, errRangeNotSatisfiable
		}
	}
	r.To = r.From + n
	return &r, nil
}

func parseQuery(ctx echo.Context) (core.Query, error) {
	var (
		q   core.Query
		err error
	)
	if q.Filters, err = parseFilters(ctx); err != nil {
		return q, err
	}
	q.Orderings = core.ParseOrderings(ctx.QueryParam("order"))
	if q.Range, err = parseRange(ctx); err != nil {
		return q, err
	}
	q.Count = preferences(ctx)["count"] == "exact"
	return q, nil
}

// contentRange renders "0-9/42"; the total is "*" when it was not counted.
func contentRange(q core.Query, n, total int) string {
	from := 0
	if q.Range != nil {
		from = q.Range.From
	}
	window := "*"
	if n > 0 {
		window = fmt.Sprintf("%d-%d", from, from+n-1)
	}
	count := "*"
	if q.Count {
		count = strconv.Itoa(total)
	}
	return window + "/" + count
}

func respondRows(ctx echo.Context, status int, recs []core.Record) error {
	if wantsObject(ctx) {
		if len(recs) != 1 {
			e := *errNoRows
			e.Details = fmt.Sprintf("The result contains %d rows", len(recs))
			return &e
		}
		return ctx.JSON(status, recs[0])
	}
	if recs == nil {
		recs = []core.Record{}
	}
	return ctx.JSON(status, recs)
}

func (api recordApi) selectRows(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	q, err := parseQuery(ctx)
	if err != nil {
		return err
	}
	recs, total, err := api.svc.Select(ctx.Request().Context(), usr.ID, ctx.Param("table"), q)
	if err != nil {
		return err
	}
	if q.Count && q.Range != nil && q.Range.From > total {
		ctx.Response().Header().Set(headerContentRange, "*/"+strconv.Itoa(total))
		e := *errRangeNotSatisfiable
		e.Details = fmt.Sprintf("An offset of %d was requested, but there are only %d rows.", q.Range.From, total)
		return &e
	}
	if q.Range != nil || q.Count {
		ctx.Response().Header().Set(headerContentRange, contentRange(q, len(recs), total))
	}
	return respondRows(ctx, http.StatusOK, recs)
}

func (api recordApi) insertRow(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var rec core.Record
	if err = bind(ctx, &rec); err != nil {
		return errInvalidBody
	}
	stored, err := api.svc.Insert(ctx.Request().Context(), usr.ID, ctx.Param("table"), rec)
	if err != nil {
		return err
	}
	if preferences(ctx)["return"] != "representation" {
		return ctx.NoContent(http.StatusCreated)
	}
	return respondRows(ctx, http.StatusCreated, []core.Record{stored})
}

func (api recordApi) updateRows(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	filters, err := parseFilters(ctx)
	if err != nil {
		return err
	}
	var rec core.Record
	if err = bind(ctx, &rec); err != nil {
		return errInvalidBody
	}
	recs, err := api.svc.Update(ctx.Request().Context(), usr.ID, ctx.Param("table"), filters, rec)
	if err != nil {
		return err
	}
	if preferences(ctx)["return"] != "representation" {
		return ctx.NoContent(http.StatusNoContent)
	}
	return respondRows(ctx, http.StatusOK, recs)
}

func (api recordApi) deleteRows(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	filters, err := parseFilters(ctx)
	if err != nil {
		return err
	}
	recs, err := api.svc.Delete(ctx.Request().Context(), usr.ID, ctx.Param("table"), filters)
	if err != nil {
		return err
	}
	if preferences(ctx)["return"] != "representation" {
		return ctx.NoContent(http.StatusNoContent)
	}
	return respondRows(ctx, http.StatusOK, recs)
}
