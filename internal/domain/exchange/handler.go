package exchange

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/stoneson/NextLevelSeven/internal/platform/auth"
	"github.com/stoneson/NextLevelSeven/pkg/hl7"
	"github.com/stoneson/NextLevelSeven/pkg/pagination"
)

// ContentTypeHL7 is the vertical-bar encoding media type accepted and
// produced by the message endpoints.
const ContentTypeHL7 = "x-application/hl7-v2+er7"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	readGroup := g.Group("", auth.RequireRole("integration", "operator"))
	readGroup.GET("/messages", h.ListMessages)
	readGroup.GET("/messages/:id", h.GetMessage)
	readGroup.GET("/messages/:id/ack", h.GetMessageAck)
	readGroup.POST("/parse", h.ParseMessage)
	readGroup.POST("/build", h.BuildMessage)

	writeGroup := g.Group("", auth.RequireRole("integration"))
	writeGroup.POST("/messages", h.IngestMessage)
}

type ingestRequest struct {
	Message string `json:"message"`
}

// IngestMessage accepts one raw message, either directly in the body
// (x-application/hl7-v2+er7 or text/plain) or wrapped in a JSON envelope
// {"message": "..."}. The acknowledgment comes back in the negotiated
// format: the ack wire text by default, the full ingest result for JSON
// clients. Rejected payloads answer 400 and are not stored.
func (h *Handler) IngestMessage(c echo.Context) error {
	raw, err := readRawMessage(c)
	if err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty message body")
	}

	res, err := h.svc.Ingest(c.Request().Context(), raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	status := http.StatusCreated
	if !res.Stored() {
		status = http.StatusBadRequest
	}
	if wantsJSON(c) {
		return c.JSON(status, res)
	}
	return c.Blob(status, ContentTypeHL7, []byte(res.Ack))
}

// GetMessage looks up a stored message by row id, or by control id when
// the path parameter is not a UUID.
func (h *Handler) GetMessage(c echo.Context) error {
	msg, err := h.lookupMessage(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, msg)
}

// GetMessageAck returns the acknowledgment recorded for a stored message,
// as wire text by default or a JSON summary for JSON clients.
func (h *Handler) GetMessageAck(c echo.Context) error {
	msg, err := h.lookupMessage(c)
	if err != nil {
		return err
	}
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]string{
			"control_id":     msg.ControlID,
			"ack_code":       msg.AckCode,
			"ack_control_id": msg.AckControlID,
			"ack":            msg.AckMessage,
		})
	}
	return c.Blob(http.StatusOK, ContentTypeHL7, []byte(msg.AckMessage))
}

func (h *Handler) ListMessages(c echo.Context) error {
	pg := pagination.FromContext(c)

	if messageType := c.QueryParam("type"); messageType != "" {
		msgs, total, err := h.svc.ListMessagesByType(c.Request().Context(), messageType, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(msgs, total, pg.Limit, pg.Offset).WithLinks(c.Path()))
	}

	msgs, total, err := h.svc.ListMessages(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(msgs, total, pg.Limit, pg.Offset).WithLinks(c.Path()))
}

// SegmentView is one segment of a structure dump.
type SegmentView struct {
	Index  int         `json:"index"`
	Name   string      `json:"name"`
	Fields []FieldView `json:"fields"`
}

// FieldView is one field of a structure dump. Repetitions and components
// appear only where the field actually divides.
type FieldView struct {
	Index       int      `json:"index"`
	Value       string   `json:"value"`
	Repetitions []string `json:"repetitions,omitempty"`
	Components  []string `json:"components,omitempty"`
}

type parseResponse struct {
	MessageType  string        `json:"message_type,omitempty"`
	TriggerEvent string        `json:"trigger_event,omitempty"`
	ControlID    string        `json:"control_id,omitempty"`
	Version      string        `json:"version,omitempty"`
	SegmentCount int           `json:"segment_count"`
	Segments     []SegmentView `json:"segments"`
}

// ParseMessage parses the body without storing anything and returns a
// structure dump of segments, fields, repetitions, and components.
func (h *Handler) ParseMessage(c echo.Context) error {
	raw, err := readRawMessage(c)
	if err != nil {
		return err
	}
	msg, perr := hl7.Parse(raw)
	if perr != nil {
		return echo.NewHTTPError(http.StatusBadRequest, perr.Error())
	}

	resp := parseResponse{
		MessageType:  headerField(msg, 1, 9, 1, 1),
		TriggerEvent: headerField(msg, 1, 9, 1, 2),
		ControlID:    headerField(msg, 1, 10),
		Version:      headerField(msg, 1, 12),
		SegmentCount: msg.ValueCount(),
	}
	for i, seg := range msg.Segments() {
		sv := SegmentView{Index: i + 1, Name: seg.Name()}
		for fi := 1; fi <= seg.ValueCount(); fi++ {
			f, ferr := seg.Field(fi)
			if ferr != nil {
				continue
			}
			fv := FieldView{Index: fi, Value: f.Value()}
			if f.Delimiter() != 0 {
				if f.ValueCount() > 1 {
					fv.Repetitions = f.Values()
				}
				if rep, rerr := f.Repetition(1); rerr == nil && rep.ValueCount() > 1 {
					fv.Components = rep.Values()
				}
			}
			sv.Fields = append(sv.Fields, fv)
		}
		resp.Segments = append(resp.Segments, sv)
	}
	return c.JSON(http.StatusOK, resp)
}

type buildValue struct {
	Segment      int    `json:"segment"`
	Field        int    `json:"field,omitempty"`
	Repetition   int    `json:"repetition,omitempty"`
	Component    int    `json:"component,omitempty"`
	Subcomponent int    `json:"subcomponent,omitempty"`
	Value        string `json:"value"`
}

type buildRequest struct {
	// Base optionally seeds the builder with existing message text.
	Base   string       `json:"base,omitempty"`
	Values []buildValue `json:"values"`
}

// BuildMessage assembles a message from coordinate-value pairs, applied in
// order at the deepest coordinate each pair names. The result is returned
// as wire text for HL7 clients or a JSON envelope otherwise.
func (h *Handler) BuildMessage(c echo.Context) error {
	var req buildRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Base == "" && len(req.Values) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "nothing to build")
	}

	builder := hl7.NewMessageBuilder()
	if req.Base != "" {
		seeded, err := hl7.NewMessageBuilderFrom(req.Base)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		builder = seeded
	}

	for i, v := range req.Values {
		if err := applyBuildValue(builder, v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest,
				"value "+strconv.Itoa(i)+": "+err.Error())
		}
	}

	text := builder.Value()
	if acceptsHL7(c) {
		return c.Blob(http.StatusOK, ContentTypeHL7, []byte(text))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":       text,
		"segment_count": builder.ValueCount(),
	})
}

// applyBuildValue writes one value at the deepest coordinate the pair
// names. An omitted repetition defaults to the first.
func applyBuildValue(b *hl7.MessageBuilder, v buildValue) error {
	rep := v.Repetition
	if rep == 0 {
		rep = 1
	}
	switch {
	case v.Subcomponent != 0:
		return b.SetSubcomponent(v.Segment, v.Field, rep, v.Component, v.Subcomponent, v.Value)
	case v.Component != 0:
		return b.SetComponent(v.Segment, v.Field, rep, v.Component, v.Value)
	case v.Repetition != 0:
		return b.SetFieldRepetition(v.Segment, v.Field, v.Repetition, v.Value)
	case v.Field != 0:
		return b.SetField(v.Segment, v.Field, v.Value)
	default:
		return b.SetSegment(v.Segment, v.Value)
	}
}

func (h *Handler) lookupMessage(c echo.Context) (*InboundMessage, error) {
	param := c.Param("id")
	if id, err := uuid.Parse(param); err == nil {
		msg, err := h.svc.GetMessage(c.Request().Context(), id)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusNotFound, "message not found")
		}
		return msg, nil
	}
	msg, err := h.svc.GetMessageByControlID(c.Request().Context(), param)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "message not found")
	}
	return msg, nil
}

// readRawMessage extracts the wire text from the request: the body as-is
// for HL7 and plain-text clients, the envelope's message field for JSON.
func readRawMessage(c echo.Context) (string, error) {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.Contains(contentType, echo.MIMEApplicationJSON) {
		var req ingestRequest
		if err := c.Bind(&req); err != nil {
			return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return req.Message, nil
	}
	b, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	return string(b), nil
}

func wantsJSON(c echo.Context) bool {
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) {
		return true
	}
	return strings.Contains(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}

func acceptsHL7(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), ContentTypeHL7)
}
