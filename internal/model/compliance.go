package model

// IssueType is the severity of a compliance issue
type IssueType string

const (
	IssueError   IssueType = "error"
	IssueWarning IssueType = "warning"
	IssueInfo    IssueType = "info"
)

// Deduction returns the compliance score penalty for one issue of this type
func (t IssueType) Deduction() int {
	switch t {
	case IssueError:
		return 30
	case IssueWarning:
		return 15
	case IssueInfo:
		return 5
	default:
		return 0
	}
}

// Valid reports whether t is a known severity
func (t IssueType) Valid() bool {
	switch t {
	case IssueError, IssueWarning, IssueInfo:
		return true
	}
	return false
}

// RiskLevel summarizes the worst severity found in a claim
type RiskLevel string

const (
	RiskHigh      RiskLevel = "high"
	RiskMedium    RiskLevel = "medium"
	RiskLow       RiskLevel = "low"
	RiskCompliant RiskLevel = "compliant"
)

// ComplianceIssue is one regulated-language match in a claim
type ComplianceIssue struct {
	Type        IssueType `json:"type"`
	Category    string    `json:"category"`
	RuleID      string    `json:"rule_id,omitempty"`
	Message     string    `json:"message"`
	MatchedText string    `json:"matched_text"`
	Suggestion  string    `json:"suggestion,omitempty"`
}

// ComplianceResult is the scan result for one claim
type ComplianceResult struct {
	ClaimID         string            `json:"claim_id"`
	Issues          []ComplianceIssue `json:"issues"`
	RiskLevel       RiskLevel         `json:"risk_level"`
	ComplianceScore int               `json:"compliance_score"` // 0-100
	RulesVersion    string            `json:"rules_version,omitempty"`
}

// ComplianceSummary aggregates results across claims
type ComplianceSummary struct {
	Total        int     `json:"total"`
	High         int     `json:"high"`
	Medium       int     `json:"medium"`
	Low          int     `json:"low"`
	Compliant    int     `json:"compliant"`
	AverageScore float64 `json:"average_score"`
}

// ComplianceReport is the output of a multi-claim compliance check
type ComplianceReport struct {
	Results []ComplianceResult `json:"results"`
	Summary ComplianceSummary  `json:"summary"`
}

// ClaimText is the minimal claim input for a compliance check
type ClaimText struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}
