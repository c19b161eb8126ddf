package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kham-river/water-quality-monitor/internal/common"
	"github.com/kham-river/water-quality-monitor/internal/export"
	"github.com/kham-river/water-quality-monitor/internal/ingest"
	"github.com/kham-river/water-quality-monitor/internal/water"
)

// maxExportRows bounds a readings export.
const maxExportRows = 10000

func isNotFound(err error) bool {
	return errors.Is(err, water.ErrNotFound)
}

// bindReading decodes a loosely typed reading body through the field aliases.
// It also returns the canonical names of the fields the body carried.
func bindReading(c *fiber.Ctx) (water.Reading, map[string]bool, error) {
	var raw map[string]any
	if err := c.BodyParser(&raw); err != nil {
		return water.Reading{}, nil, badRequest("invalid request body")
	}
	r, issues := water.NormalizeRecord(raw)
	if len(issues) > 0 {
		return water.Reading{}, nil, badRequest(strings.Join(issues, "; "))
	}
	sent := make(map[string]bool, len(raw))
	for k := range raw {
		if field, found := water.CanonicalField(k); found {
			sent[field] = true
		}
	}
	return r, sent, nil
}

// readingUpdate keeps only the fields present in the body.
func readingUpdate(r water.Reading, sent map[string]bool) water.ReadingUpdate {
	upd := water.ReadingUpdate{
		PH:          r.PH,
		Temperature: r.Temperature,
		EC:          r.EC,
		TDS:         r.TDS,
		Turbidity:   r.Turbidity,
	}
	if r.StationID != "" {
		upd.StationID = &r.StationID
	}
	if !r.Timestamp.IsZero() {
		upd.Timestamp = &r.Timestamp
	}
	if sent["remarks"] {
		upd.Remarks = &r.Remarks
	}
	return upd
}

func (h *handlers) addReading(c *fiber.Ctx) error {
	r, _, err := bindReading(c)
	if err != nil {
		return err
	}
	if r.StationID == "" || !r.Complete() {
		return badRequest("All water quality parameters are required")
	}

	saved, err := h.svc.CreateReading(c.UserContext(), r)
	if err != nil {
		return err
	}
	return created(c, "Water quality data added successfully", saved)
}

func (h *handlers) uploadCSV(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest("No file uploaded")
	}
	if fh.Size > ingest.MaxUploadBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "file exceeds the 10MB limit")
	}
	ct := strings.ToLower(fh.Header.Get(fiber.HeaderContentType))
	if !common.HasAnySuffix(fh.Filename, ".csv") && !common.HasAny(ct, "text/csv", "application/csv") {
		return badRequest("Only CSV files are allowed!")
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	ctx := c.UserContext()
	stations, err := h.svc.ListStations(ctx)
	if err != nil {
		return err
	}

	res, err := ingest.ParseCSV(f, ingest.NewStationIndex(stations))
	if err != nil {
		return badRequest(err.Error())
	}
	if !res.OK() {
		h.log.Warn("csv upload rejected", zap.String("file", fh.Filename), zap.Int("errors", len(res.Errors)))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Validation errors found",
			"errors":  res.Errors,
		})
	}

	n, err := h.svc.ImportReadings(ctx, res.Readings)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"message":       "Data uploaded successfully",
		"rowsProcessed": n,
	})
}

func (h *handlers) stationReadings(c *fiber.Ctx) error {
	list, page, err := h.svc.ListReadings(c.UserContext(), c.Params("stationId"), c.QueryInt("page", 1), c.QueryInt("limit", 100))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"data":       list,
		"pagination": page,
	})
}

func (h *handlers) latestAll(c *fiber.Ctx) error {
	list, err := h.svc.LatestReadings(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, list)
}

func (h *handlers) latestForStation(c *fiber.Ctx) error {
	list, _, err := h.svc.ListReadings(c.UserContext(), c.Params("stationId"), 1, 1)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return fiber.NewError(fiber.StatusNotFound, "No readings found for this station")
	}
	return ok(c, list[0])
}

func (h *handlers) getReading(c *fiber.Ctx) error {
	r, err := h.svc.GetReading(c.UserContext(), c.Params("id"))
	if err != nil {
		return readingErr(err)
	}
	return ok(c, r)
}

func (h *handlers) updateReading(c *fiber.Ctx) error {
	r, sent, err := bindReading(c)
	if err != nil {
		return err
	}
	updated, err := h.svc.UpdateReading(c.UserContext(), c.Params("id"), readingUpdate(r, sent))
	if err != nil {
		return readingErr(err)
	}
	return ok(c, updated)
}

func (h *handlers) deleteReading(c *fiber.Ctx) error {
	if err := h.svc.DeleteReading(c.UserContext(), c.Params("id")); err != nil {
		return readingErr(err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Reading deleted successfully",
	})
}

func readingErr(err error) error {
	if isNotFound(err) && !errors.Is(err, water.ErrStationNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Reading not found")
	}
	return err
}

func (h *handlers) exportReadings(c *fiber.Ctx) error {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		return badRequest(err.Error())
	}
	limit := c.QueryInt("limit", maxExportRows)
	if limit <= 0 || limit > maxExportRows {
		limit = maxExportRows
	}

	stationID := c.Query("stationId")
	if stationID == water.AllStations {
		stationID = ""
	}
	history, err := h.svc.History(c.UserContext(), stationID, limit)
	if err != nil {
		return err
	}

	name := "readings"
	if stationID != "" {
		name += "-" + stationID
	}
	return sendExport(c, format, name, "Readings", history, h.svc.Standards())
}

func sendExport(c *fiber.Ctx, format export.Format, name, sheet string, readings []water.Reading, table water.StandardsTable) error {
	var buf bytes.Buffer
	var err error
	if format == export.FormatXLSX {
		err = export.WriteXLSX(&buf, sheet, readings, table)
	} else {
		err = export.WriteCSV(&buf, readings)
	}
	if err != nil {
		return fmt.Errorf("render export: %w", err)
	}

	c.Attachment(format.Filename(name))
	c.Set(fiber.HeaderContentType, format.ContentType())
	return c.Send(buf.Bytes())
}
