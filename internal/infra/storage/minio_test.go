package storage

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", ContentType("/r/payments_report.json"))
	assert.Equal(t, "application/sarif+json", ContentType("payments_report.SARIF"))
	assert.Equal(t, "text/html; charset=utf-8", ContentType("payments_report.html"))
	assert.Equal(t, "application/octet-stream", ContentType("payments_report"))
}

func TestObjectURL(t *testing.T) {
	u, _ := url.Parse("https://minio.internal:9000")
	assert.Equal(t, "https://minio.internal:9000/reports/payments/abc/payments_report.json",
		ObjectURL(u, "reports", "payments/abc/payments_report.json"))

	assert.Equal(t, "http://localhost:9000/reports/x.html",
		ObjectURL(&url.URL{Host: "localhost:9000"}, "reports", "x.html"))
}
