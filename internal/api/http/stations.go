package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kham-river/water-quality-monitor/internal/water"
)

// stationRequest is the station payload. All fields are optional on update.
type stationRequest struct {
	StationCode   *int                 `json:"stationId" validate:"omitempty,gte=1"`
	Name          *string              `json:"stationName" validate:"omitempty,max=200"`
	Location      *water.GeoPoint      `json:"location"`
	Region        *string              `json:"region" validate:"omitempty,max=200"`
	RiverBankSide *water.BankSide      `json:"riverBankSide" validate:"omitempty,oneof=Left Right Center"`
	Status        *water.StationStatus `json:"status" validate:"omitempty,oneof=Active Inactive"`
}

func (r stationRequest) toUpdate() water.StationUpdate {
	return water.StationUpdate{
		StationCode:   r.StationCode,
		Name:          r.Name,
		Location:      r.Location,
		Region:        r.Region,
		RiverBankSide: r.RiverBankSide,
		Status:        r.Status,
	}
}

func (r stationRequest) toStation() water.Station {
	var st water.Station
	if r.StationCode != nil {
		st.StationCode = *r.StationCode
	}
	if r.Name != nil {
		st.Name = *r.Name
	}
	if r.Location != nil {
		st.Location = *r.Location
	}
	if r.Region != nil {
		st.Region = *r.Region
	}
	if r.RiverBankSide != nil {
		st.RiverBankSide = *r.RiverBankSide
	}
	if r.Status != nil {
		st.Status = *r.Status
	}
	return st
}

func bindStation(c *fiber.Ctx) (stationRequest, error) {
	var req stationRequest
	if err := c.BodyParser(&req); err != nil {
		return req, badRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return req, badRequest(err.Error())
	}
	return req, nil
}

func (h *handlers) listStations(c *fiber.Ctx) error {
	list, err := h.svc.ListStations(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, list)
}

func (h *handlers) getStation(c *fiber.Ctx) error {
	st, err := h.svc.GetStation(c.UserContext(), c.Params("id"))
	if err != nil {
		return stationErr(err)
	}
	return ok(c, st)
}

func (h *handlers) createStation(c *fiber.Ctx) error {
	req, err := bindStation(c)
	if err != nil {
		return err
	}
	if req.StationCode == nil {
		return badRequest("stationId is required")
	}
	st, err := h.svc.CreateStation(c.UserContext(), req.toStation())
	if err != nil {
		return err
	}
	return created(c, "Station created successfully", st)
}

func (h *handlers) updateStation(c *fiber.Ctx) error {
	req, err := bindStation(c)
	if err != nil {
		return err
	}
	st, err := h.svc.UpdateStation(c.UserContext(), c.Params("id"), req.toUpdate())
	if err != nil {
		return stationErr(err)
	}
	return ok(c, st)
}

func (h *handlers) deleteStation(c *fiber.Ctx) error {
	if err := h.svc.DeleteStation(c.UserContext(), c.Params("id")); err != nil {
		return stationErr(err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Station deleted successfully",
	})
}

// stationErr reports a missing station as such rather than a generic 404.
func stationErr(err error) error {
	if isNotFound(err) {
		return fiber.NewError(fiber.StatusNotFound, "Station not found")
	}
	return err
}
