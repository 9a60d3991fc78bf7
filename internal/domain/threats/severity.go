package threats

import "strings"

// Add counts one finding of the given scanner severity label.
func (c *SeverityCounts) Add(severity string) {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "critical":
		c.Critical++
	case "high":
		c.High++
	case "medium", "moderate":
		c.Medium++
	case "low", "info", "informational", "negligible":
		c.Low++
	default:
		c.Unknown++
	}
	c.Total++
}

// CountSeverities tallies the severity labels of vulns.
func CountSeverities(vulns []*Vulnerability) SeverityCounts {
	var c SeverityCounts
	for _, v := range vulns {
		c.Add(v.Severity)
	}
	return c
}

// Merge adds o into c.
func (c *SeverityCounts) Merge(o SeverityCounts) {
	c.Critical += o.Critical
	c.High += o.High
	c.Medium += o.Medium
	c.Low += o.Low
	c.Unknown += o.Unknown
	c.Total += o.Total
}
