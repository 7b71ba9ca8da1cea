package audit

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Server is the HTTP surface of the audit service (§6 "HTTP API on port
// 8040"), grounded in the teacher's pkg/api.Server (handler-struct +
// gin.Context method pattern) and ocx-backend-go-svc's X-Tenant-ID
// middleware for the tenant-isolation requirement every endpoint here
// carries.
type Server struct {
	repo       *Repository
	assembler  *PackageAssembler
	verifier   *Verifier
	retention  *RetentionManager
}

// NewServer constructs a Server. assembler, verifier, and retention may
// be nil if the corresponding routes are never registered.
func NewServer(repo *Repository, assembler *PackageAssembler, verifier *Verifier, retention *RetentionManager) *Server {
	return &Server{repo: repo, assembler: assembler, verifier: verifier, retention: retention}
}

// tenantFromRequest extracts the tenant a request is scoped to from the
// X-Tenant-ID header (§6 "All endpoints enforce tenant isolation from
// credential context"). A production deployment sits this service
// behind a gateway that has already authenticated the caller and
// populated this header from validated credentials; the audit service
// itself only ever trusts it, never re-derives it from a token.
func tenantFromRequest(c *gin.Context) (string, bool) {
	tenantID := c.GetHeader("X-Tenant-ID")
	if tenantID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-Tenant-ID"})
		return "", false
	}
	return tenantID, true
}

// NewRouter builds the gin.Engine exposing the six audit endpoints named
// in §6.
func NewRouter(s *Server) *gin.Engine {
	r := gin.Default()
	v1 := r.Group("/v1/audit")
	v1.GET("/evidence-package/:investigation_id", s.GetEvidencePackage)
	v1.GET("/events", s.ListEvents)
	v1.GET("/events/:audit_id", s.GetEvent)
	v1.GET("/verify", s.Verify)
	v1.GET("/reports/compliance", s.ComplianceReport)
	v1.POST("/export", s.Export)
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	return r
}

// GetEvidencePackage handles GET
// /v1/audit/evidence-package/{investigation_id}?include_raw_prompts=bool.
func (s *Server) GetEvidencePackage(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}
	investigationID := c.Param("investigation_id")
	includeRaw, _ := strconv.ParseBool(c.DefaultQuery("include_raw_prompts", "false"))

	pkg, err := s.assembler.Assemble(c.Request.Context(), tenantID, investigationID, includeRaw)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pkg)
}

// ListEvents handles GET
// /v1/audit/events?tenant_id&event_type&from&to&limit. tenant_id in the
// header wins; the query parameter, if present, must match it.
func (s *Server) ListEvents(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}
	if q := c.Query("tenant_id"); q != "" && q != tenantID {
		c.JSON(http.StatusForbidden, gin.H{"error": "tenant_id mismatch"})
		return
	}

	f := Filter{TenantID: tenantID, EventType: c.Query("event_type")}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from: " + err.Error()})
			return
		}
		f.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to: " + err.Error()})
			return
		}
		f.To = t
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit: " + err.Error()})
			return
		}
		f.Limit = n
	}

	records, err := s.repo.ListRecords(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// GetEvent handles GET /v1/audit/events/{audit_id}.
func (s *Server) GetEvent(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}
	record, found, err := s.repo.GetByID(c.Request.Context(), tenantID, c.Param("audit_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// Verify handles GET /v1/audit/verify?tenant_id&from&to, running an
// on-demand chain verification over the requested sequence window rather
// than waiting on the periodic Verifier jobs.
func (s *Server) Verify(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	from, to := int64(0), int64(-1)
	if v := c.Query("from"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from: " + err.Error()})
			return
		}
		from = n
	}
	if v := c.Query("to"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to: " + err.Error()})
			return
		}
		to = n
	} else {
		max, err := s.repo.MaxSequence(c.Request.Context(), tenantID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		to = max
	}

	records, err := s.repo.SequenceRange(c.Request.Context(), tenantID, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	result := VerifyChain(records)
	c.JSON(http.StatusOK, gin.H{"valid": result.Valid, "errors": result.Errors, "records_checked": len(records)})
}

// ComplianceReport handles GET
// /v1/audit/reports/compliance?tenant_id&month=YYYY-MM, a monthly
// summary of audit activity by event category and severity (Supplemented
// Feature: a lightweight compliance rollup in lieu of the teacher's
// absent reporting surface, grounded in kubechat's
// GenerateComplianceReport shape without its SOX/HIPAA/SOC2 templating).
func (s *Server) ComplianceReport(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}
	month := c.Query("month")
	monthStart, err := time.Parse("2006-01", month)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month, want YYYY-MM: " + err.Error()})
		return
	}
	monthEnd := monthStart.AddDate(0, 1, 0)

	records, err := s.repo.ListRecords(c.Request.Context(), Filter{TenantID: tenantID, From: monthStart, To: monthEnd.Add(-time.Nanosecond), Limit: 1_000_000})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	byCategory := map[EventCategory]int{}
	bySeverity := map[string]int{}
	for _, r := range records {
		byCategory[r.EventCategory]++
		bySeverity[r.Severity]++
	}
	c.JSON(http.StatusOK, gin.H{
		"tenant_id":   tenantID,
		"month":       month,
		"total_events": len(records),
		"by_category": byCategory,
		"by_severity": bySeverity,
	})
}

// ExportRequest is the body for POST /v1/audit/export.
type ExportRequest struct {
	TenantID  string    `json:"tenant_id" binding:"required"`
	Format    string    `json:"format" binding:"required,oneof=json csv"`
	EventType string    `json:"event_type,omitempty"`
	From      time.Time `json:"from,omitempty"`
	To        time.Time `json:"to,omitempty"`
}

// Export handles POST /v1/audit/export, a synchronous bulk export for
// small windows; large windows should instead go through the monthly
// Parquet retention export (RetentionManager.ExportPartition) and be
// fetched directly from cold storage.
func (s *Server) Export(c *gin.Context) {
	headerTenant, ok := tenantFromRequest(c)
	if !ok {
		return
	}
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TenantID != headerTenant {
		c.JSON(http.StatusForbidden, gin.H{"error": "tenant_id mismatch"})
		return
	}

	records, err := s.repo.ListRecords(c.Request.Context(), Filter{
		TenantID:  req.TenantID,
		EventType: req.EventType,
		From:      req.From,
		To:        req.To,
		Limit:     1_000_000,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	switch strings.ToLower(req.Format) {
	case "csv":
		c.Writer.Header().Set("Content-Type", "text/csv")
		c.Writer.Header().Set("Content-Disposition", `attachment; filename="audit_export.csv"`)
		w := csv.NewWriter(c.Writer)
		_ = w.Write([]string{"audit_id", "sequence_number", "timestamp", "event_type", "event_category", "severity", "actor_id", "investigation_id"})
		for _, r := range records {
			_ = w.Write([]string{
				r.AuditID,
				strconv.FormatInt(r.SequenceNumber, 10),
				r.Timestamp.UTC().Format(time.RFC3339),
				r.EventType,
				string(r.EventCategory),
				r.Severity,
				r.Actor.ID,
				r.InvestigationID,
			})
		}
		w.Flush()
	default:
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Writer.Header().Set("Content-Disposition", `attachment; filename="audit_export.json"`)
		enc := json.NewEncoder(c.Writer)
		_ = enc.Encode(gin.H{"records": records})
	}
}
