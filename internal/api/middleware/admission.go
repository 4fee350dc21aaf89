package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jobvine/sentinel/internal/sentinel"
)

// maxBodyInspectBytes caps how much of a request body the classifier reads.
// Bodies beyond the cap are flagged oversized via the field length rule.
// Within that cap every collected field is scanned; skipping any would let
// a payload hide an attack behind a run of benign values.
const maxBodyInspectBytes = 4 << 20

// RouteClassFor maps a request path to its rate-limit route class.
func RouteClassFor(method, path string) sentinel.RouteClass {
	switch {
	case strings.HasPrefix(path, "/api/v1/auth"):
		return sentinel.RouteAuth
	case strings.HasPrefix(path, "/api/v1/uploads"):
		return sentinel.RouteUpload
	case strings.HasPrefix(path, "/api/v1/messages"):
		return sentinel.RouteMessaging
	case strings.HasPrefix(path, "/api/v1/jobs") && method != http.MethodGet:
		return sentinel.RouteJobPosting
	case strings.HasPrefix(path, "/api/v1/applications"):
		return sentinel.RouteApplications
	default:
		return sentinel.RouteGeneral
	}
}

// Admission runs the full admission check before any handler: identity and
// tier derivation, block/rate gating, and payload scanning. Deny responses
// carry the engine's status code and a machine-readable reason.
func Admission(svc *sentinel.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		in := sentinel.CheckInput{
			Identity: identityFor(c),
			Tier:     TierFromContext(c),
			Route:    RouteClassFor(c.Request.Method, c.Request.URL.Path),
		}
		in.Fields, in.Files = collectScannables(c)

		decision := svc.Check(in)
		if decision.Allowed {
			c.Next()
			return
		}

		if decision.RetryAfter > 0 {
			c.Header("Retry-After", fmt.Sprintf("%d", int(decision.RetryAfter.Seconds()+1)))
		}
		body := gin.H{"error": denyMessage(decision.Reason), "reason": string(decision.Reason)}
		if decision.Category != sentinel.ViolationNone {
			body["category"] = decision.Category.String()
		}
		entry := GetRequestLogger(c)
		entry.WithFields(map[string]interface{}{
			"identity": in.Identity,
			"reason":   string(decision.Reason),
			"status":   decision.StatusCode,
			"route":    string(in.Route),
		}).Warn("request denied")
		c.AbortWithStatusJSON(decision.StatusCode, body)
	}
}

func denyMessage(reason sentinel.ReasonCode) string {
	switch reason {
	case sentinel.ReasonMaliciousInput:
		return "request contains disallowed content"
	case sentinel.ReasonBlocked:
		return "access temporarily blocked"
	case sentinel.ReasonRateLimited:
		return "rate limit exceeded"
	default:
		return "request denied"
	}
}

// identityFor composes the tracking key: client IP alone for anonymous
// callers, IP plus user id once authenticated. Derived once per request.
func identityFor(c *gin.Context) string {
	ip := c.ClientIP()
	if userID := UserIDFromContext(c); userID != "" {
		return ip + "|" + userID
	}
	return ip
}

// collectScannables gathers every string-valued input of the request: query
// and path parameters, form values, JSON body leaves, and upload metadata.
// The body is restored afterwards so handlers can read it as usual.
func collectScannables(c *gin.Context) ([]sentinel.Field, []sentinel.FileMeta) {
	var fields []sentinel.Field
	var files []sentinel.FileMeta

	for key, vals := range c.Request.URL.Query() {
		for _, v := range vals {
			fields = append(fields, sentinel.Field{Name: "query:" + key, Value: v})
		}
	}
	for _, p := range c.Params {
		fields = append(fields, sentinel.Field{Name: "param:" + p.Key, Value: p.Value})
	}

	ct := c.ContentType()
	switch {
	case strings.HasPrefix(ct, "application/json"):
		fields = append(fields, jsonBodyFields(c)...)
	case strings.HasPrefix(ct, "multipart/form-data"):
		if form, err := c.MultipartForm(); err == nil {
			for key, vals := range form.Value {
				for _, v := range vals {
					fields = append(fields, sentinel.Field{Name: "form:" + key, Value: v})
				}
			}
			for _, headers := range form.File {
				for _, fh := range headers {
					files = append(files, sentinel.FileMeta{
						Filename: fh.Filename,
						MimeType: fh.Header.Get("Content-Type"),
						Size:     fh.Size,
					})
				}
			}
		}
	case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		if err := c.Request.ParseForm(); err == nil {
			for key, vals := range c.Request.PostForm {
				for _, v := range vals {
					fields = append(fields, sentinel.Field{Name: "form:" + key, Value: v})
				}
			}
		}
	}

	return fields, files
}

// jsonBodyFields walks the JSON body and returns every string leaf. The raw
// body is put back on the request for downstream handlers.
func jsonBodyFields(c *gin.Context) []sentinel.Field {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyInspectBytes))
	if err != nil {
		return nil
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	var fields []sentinel.Field
	walkJSON("body", doc, &fields)
	return fields
}

func walkJSON(path string, node interface{}, out *[]sentinel.Field) {
	switch v := node.(type) {
	case string:
		*out = append(*out, sentinel.Field{Name: path, Value: v})
	case map[string]interface{}:
		for key, child := range v {
			walkJSON(path+"."+key, child, out)
		}
	case []interface{}:
		for _, child := range v {
			walkJSON(path+"[]", child, out)
		}
	}
}
