package exchange

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	return h, e
}

func ingestSample(t *testing.T, h *Handler, raw string) *InboundMessage {
	t.Helper()
	res, err := h.svc.Ingest(nil, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Message == nil {
		t.Fatalf("expected sample message to be stored")
	}
	return res.Message
}

func TestHandler_IngestMessage(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/messages", strings.NewReader(sampleADT))
	req.Header.Set(echo.HeaderContentType, ContentTypeHL7)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.IngestMessage(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.Contains(ct, ContentTypeHL7) {
		t.Errorf("expected HL7 content type, got %s", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "MSH|") {
		t.Errorf("expected ack wire text, got %q", body)
	}
	if !strings.Contains(body, "MSA|AA|MSG00001") {
		t.Errorf("expected accepting MSA segment, got %q", body)
	}
}

func TestHandler_IngestMessage_TextPlain(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/messages", strings.NewReader(sampleADT))
	req.Header.Set(echo.HeaderContentType, echo.MIMETextPlain)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.IngestMessage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_IngestMessage_JSONEnvelope(t *testing.T) {
	h, e := newTestHandler()

	envelope, _ := json.Marshal(map[string]string{"message": sampleADT})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/messages", strings.NewReader(string(envelope)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.IngestMessage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var res IngestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("expected JSON result, got %q", rec.Body.String())
	}
	if res.Code != "AA" {
		t.Errorf("expected code AA, got %s", res.Code)
	}
	if res.Message == nil || res.Message.ControlID != "MSG00001" {
		t.Errorf("expected stored message in result, got %+v", res.Message)
	}
	if !strings.HasPrefix(res.Ack, "MSH|") {
		t.Errorf("expected ack in result, got %q", res.Ack)
	}
}

func TestHandler_IngestMessage_Reject(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/messages", strings.NewReader("garbage payload"))
	req.Header.Set(echo.HeaderContentType, ContentTypeHL7)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.IngestMessage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "MSA|AR|") {
		t.Errorf("expected AR acknowledgment body, got %q", rec.Body.String())
	}
}

func TestHandler_IngestMessage_Empty(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/messages", strings.NewReader("   "))
	req.Header.Set(echo.HeaderContentType, ContentTypeHL7)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.IngestMessage(c); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestHandler_GetMessage(t *testing.T) {
	h, e := newTestHandler()
	stored := ingestSample(t, h, sampleADT)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())

	if err := h.GetMessage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var msg InboundMessage
	json.Unmarshal(rec.Body.Bytes(), &msg)
	if msg.ControlID != "MSG00001" {
		t.Errorf("expected MSG00001, got %s", msg.ControlID)
	}
}

func TestHandler_GetMessage_ByControlID(t *testing.T) {
	h, e := newTestHandler()
	ingestSample(t, h, sampleADT)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("MSG00001")

	if err := h.GetMessage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetMessage_NotFound(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if err := h.GetMessage(c); err == nil {
		t.Error("expected error for not found")
	}
}

func TestHandler_GetMessageAck(t *testing.T) {
	h, e := newTestHandler()
	stored := ingestSample(t, h, sampleADT)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())

	if err := h.GetMessageAck(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "MSA|AA|MSG00001") {
		t.Errorf("expected recorded ack, got %q", rec.Body.String())
	}
}

func TestHandler_GetMessageAck_JSON(t *testing.T) {
	h, e := newTestHandler()
	stored := ingestSample(t, h, sampleADT)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())

	if err := h.GetMessageAck(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got %q", rec.Body.String())
	}
	if body["ack_code"] != "AA" {
		t.Errorf("expected ack_code AA, got %s", body["ack_code"])
	}
	if body["control_id"] != "MSG00001" {
		t.Errorf("expected control_id MSG00001, got %s", body["control_id"])
	}
	if !strings.HasPrefix(body["ack"], "MSH|") {
		t.Errorf("expected ack text, got %q", body["ack"])
	}
}

func TestHandler_ListMessages(t *testing.T) {
	h, e := newTestHandler()
	ingestSample(t, h, sampleADT)
	ingestSample(t, h, sampleORU)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hl7/messages", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListMessages(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Total int               `json:"total"`
		Data  []*InboundMessage `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 2 || len(body.Data) != 2 {
		t.Errorf("expected 2 messages, got total=%d len=%d", body.Total, len(body.Data))
	}
}

func TestHandler_ListMessages_FilterByType(t *testing.T) {
	h, e := newTestHandler()
	ingestSample(t, h, sampleADT)
	ingestSample(t, h, sampleORU)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hl7/messages?type=ORU", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListMessages(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Total int               `json:"total"`
		Data  []*InboundMessage `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 || len(body.Data) != 1 {
		t.Fatalf("expected 1 ORU message, got total=%d len=%d", body.Total, len(body.Data))
	}
	if body.Data[0].MessageType != "ORU" {
		t.Errorf("expected ORU, got %s", body.Data[0].MessageType)
	}
}

func TestHandler_ParseMessage(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/parse", strings.NewReader(sampleADT))
	req.Header.Set(echo.HeaderContentType, ContentTypeHL7)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ParseMessage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var resp parseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON structure dump, got %q", rec.Body.String())
	}
	if resp.MessageType != "ADT" || resp.TriggerEvent != "A01" {
		t.Errorf("expected ADT/A01, got %s/%s", resp.MessageType, resp.TriggerEvent)
	}
	if resp.SegmentCount != 3 || len(resp.Segments) != 3 {
		t.Fatalf("expected 3 segments, got count=%d len=%d", resp.SegmentCount, len(resp.Segments))
	}
	if resp.Segments[0].Name != "MSH" || resp.Segments[2].Name != "PID" {
		t.Errorf("unexpected segment names: %s, %s", resp.Segments[0].Name, resp.Segments[2].Name)
	}

	// PID-3 is a composite: 12345^^^MRN.
	pid := resp.Segments[2]
	var pid3 *FieldView
	for i := range pid.Fields {
		if pid.Fields[i].Index == 3 {
			pid3 = &pid.Fields[i]
		}
	}
	if pid3 == nil {
		t.Fatal("expected PID-3 in structure dump")
	}
	if pid3.Value != "12345^^^MRN" {
		t.Errorf("expected PID-3 value 12345^^^MRN, got %q", pid3.Value)
	}
	if len(pid3.Components) != 4 || pid3.Components[0] != "12345" || pid3.Components[3] != "MRN" {
		t.Errorf("expected 4 components for PID-3, got %v", pid3.Components)
	}
}

func TestHandler_ParseMessage_Repetitions(t *testing.T) {
	h, e := newTestHandler()

	raw := "MSH|^~\\&|A|B|C|D|20230314000000||ADT^A08|CTRL9|P|2.5\r" +
		"PID|1||111~222^^^MRN"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/parse", strings.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, ContentTypeHL7)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ParseMessage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp parseResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	pid := resp.Segments[1]
	var pid3 *FieldView
	for i := range pid.Fields {
		if pid.Fields[i].Index == 3 {
			pid3 = &pid.Fields[i]
		}
	}
	if pid3 == nil {
		t.Fatal("expected PID-3 in structure dump")
	}
	if len(pid3.Repetitions) != 2 || pid3.Repetitions[0] != "111" {
		t.Errorf("expected 2 repetitions for PID-3, got %v", pid3.Repetitions)
	}
}

func TestHandler_ParseMessage_Invalid(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/parse", strings.NewReader("garbage"))
	req.Header.Set(echo.HeaderContentType, ContentTypeHL7)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ParseMessage(c); err == nil {
		t.Error("expected error for unparseable body")
	}
}

func TestHandler_BuildMessage(t *testing.T) {
	h, e := newTestHandler()

	body := `{"values":[
		{"segment":1,"value":"MSH|^~\\&|BUILDER|FAC|||20230314000000||ADT^A01|CTRL1|P|2.5"},
		{"segment":2,"value":"PID"},
		{"segment":2,"field":3,"component":1,"value":"12345"},
		{"segment":2,"field":3,"component":4,"value":"MRN"},
		{"segment":2,"field":5,"component":1,"value":"Doe"},
		{"segment":2,"field":5,"component":2,"value":"John"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/build", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.BuildMessage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Message      string `json:"message"`
		SegmentCount int    `json:"segment_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON envelope, got %q", rec.Body.String())
	}
	if resp.SegmentCount != 2 {
		t.Errorf("expected 2 segments, got %d", resp.SegmentCount)
	}
	if !strings.Contains(resp.Message, "PID|||12345^^^MRN||Doe^John") {
		t.Errorf("unexpected built message: %q", resp.Message)
	}
}

func TestHandler_BuildMessage_FromBase(t *testing.T) {
	h, e := newTestHandler()

	envelope, _ := json.Marshal(map[string]interface{}{
		"base": sampleADT,
		"values": []map[string]interface{}{
			{"segment": 1, "field": 10, "value": "OVERRIDDEN"},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/build", strings.NewReader(string(envelope)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.BuildMessage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Message string `json:"message"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !strings.Contains(resp.Message, "|OVERRIDDEN|") {
		t.Errorf("expected overridden control id, got %q", resp.Message)
	}
	if strings.Contains(resp.Message, "MSG00001") {
		t.Errorf("expected original control id replaced, got %q", resp.Message)
	}
}

func TestHandler_BuildMessage_WireText(t *testing.T) {
	h, e := newTestHandler()

	body := `{"values":[{"segment":1,"value":"MSH|^~\\&|A|B"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/build", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAccept, ContentTypeHL7)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.BuildMessage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != "MSH|^~\\&|A|B" {
		t.Errorf("expected raw wire text, got %q", rec.Body.String())
	}
}

func TestHandler_BuildMessage_Empty(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/build", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.BuildMessage(c); err == nil {
		t.Error("expected error for empty build request")
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler()
	g := e.Group("/api/v1/hl7")

	h.RegisterRoutes(g)

	routes := e.Routes()
	routePaths := make(map[string]bool)
	for _, r := range routes {
		routePaths[r.Method+":"+r.Path] = true
	}

	expected := []string{
		"POST:/api/v1/hl7/messages",
		"GET:/api/v1/hl7/messages",
		"GET:/api/v1/hl7/messages/:id",
		"GET:/api/v1/hl7/messages/:id/ack",
		"POST:/api/v1/hl7/parse",
		"POST:/api/v1/hl7/build",
	}
	for _, path := range expected {
		if !routePaths[path] {
			t.Errorf("missing expected route: %s", path)
		}
	}
}
