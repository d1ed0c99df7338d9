package lookup

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/TomasB/geolookup/internal/data"
	"github.com/TomasB/geolookup/internal/value"
	"github.com/gin-gonic/gin"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
)

// MIMEMsgpack is served when the client prefers it over JSON.
const MIMEMsgpack = "application/msgpack"

const mimeJSON = "application/json; charset=utf-8"

// MaxBatch is the largest number of addresses accepted by one batch request.
const MaxBatch = 100

const batchConcurrency = 8

// Response is the result of looking up one address. Data holds the record
// with its original key order, or null when the database has no record.
type Response struct {
	IP      string `json:"ip" msgpack:"ip"`
	Network string `json:"network,omitempty" msgpack:"network,omitempty"`
	Found   bool   `json:"found" msgpack:"found"`
	Data    any    `json:"data" msgpack:"data"`
	Error   string `json:"error,omitempty" msgpack:"error,omitempty"`
}

// BatchRequest represents the JSON body for a batch lookup.
type BatchRequest struct {
	IPs []string `json:"ips" binding:"required,min=1,max=100"`
}

// BatchResponse holds one Response per requested address, in request order.
type BatchResponse struct {
	Results []Response `json:"results" msgpack:"results"`
	Error   string     `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Handler manages record lookup endpoints.
type Handler struct {
	lookup data.RecordLookup
}

// NewHandler creates a new lookup handler with the given RecordLookup.
func NewHandler(lookup data.RecordLookup) *Handler {
	return &Handler{lookup: lookup}
}

// Get handles GET /api/v1/lookup/:ip
func (h *Handler) Get(c *gin.Context) {
	resp, status := h.resolve(c.Param("ip"))
	render(c, status, resp)
}

// Batch handles POST /api/v1/lookup
//
// Every address is resolved independently; a bad address fails its own
// entry and not the request.
func (h *Handler) Batch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		render(c, http.StatusBadRequest, BatchResponse{
			Error: "invalid request: " + err.Error(),
		})
		return
	}

	slog.Debug("batch lookup received", "count", len(req.IPs))

	results := make([]Response, len(req.IPs))
	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, ip := range req.IPs {
		i, ip := i, ip
		g.Go(func() error {
			results[i], _ = h.resolve(ip)
			return nil
		})
	}
	_ = g.Wait()

	render(c, http.StatusOK, BatchResponse{Results: results})
}

// Metadata handles GET /api/v1/metadata
func (h *Handler) Metadata(c *gin.Context) {
	c.JSON(http.StatusOK, h.lookup.Metadata())
}

func (h *Handler) resolve(ip string) (Response, int) {
	res, err := h.lookup.Lookup(ip)
	switch data.KindOf(err) {
	case 0:
	case data.KindInvalidInput:
		return Response{IP: ip, Error: "invalid IP address"}, http.StatusBadRequest
	default:
		slog.Error("record lookup failed", "ip", ip, "error", err)
		return Response{IP: ip, Error: "lookup failed"}, http.StatusInternalServerError
	}

	return NewResponse(ip, res), http.StatusOK
}

// NewResponse converts the result of a successful lookup of ip.
func NewResponse(ip string, res data.Result) Response {
	resp := Response{IP: ip, Found: res.Found}
	if res.Network.IsValid() {
		resp.Network = res.Network.String()
	}
	if res.Found {
		resp.Data = value.ToNative(res.Value)
	}
	return resp
}

func render(c *gin.Context, status int, body any) {
	var (
		b    []byte
		err  error
		mime string
	)
	if c.NegotiateFormat(gin.MIMEJSON, MIMEMsgpack) == MIMEMsgpack {
		b, err = msgpack.Marshal(body)
		mime = MIMEMsgpack
	} else {
		// Records may hold NaN or infinite doubles, which JSON cannot carry.
		b, err = json.Marshal(body)
		mime = mimeJSON
	}
	if err != nil {
		slog.Error("failed to encode response", "format", mime, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encoding failed"})
		return
	}
	c.Data(status, mime, b)
}
