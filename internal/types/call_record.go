package types

// CallRecord represents a finished call flattened for DynamoDB persistence
type CallRecord struct {
	DateKey         string  `json:"dateKey" dynamodbav:"DateKey"` // YYYY-MM-DD (partition key)
	CallID          string  `json:"callId" dynamodbav:"CallID"`   // sort key
	VerificationID  string  `json:"verificationId" dynamodbav:"VerificationID"`
	CustomerID      string  `json:"customerId" dynamodbav:"CustomerID"`
	AgentID         string  `json:"agentId" dynamodbav:"AgentID"`
	Priority        string  `json:"priority" dynamodbav:"Priority"`
	Result          string  `json:"result" dynamodbav:"Result"`
	Notes           string  `json:"notes" dynamodbav:"Notes"`
	CreatedAt       string  `json:"createdAt" dynamodbav:"CreatedAt"`   // RFC3339
	AssignedAt      string  `json:"assignedAt" dynamodbav:"AssignedAt"` // RFC3339
	CompletedAt     string  `json:"completedAt" dynamodbav:"CompletedAt"`
	WaitTimeSeconds float64 `json:"waitTimeSeconds" dynamodbav:"WaitTimeSeconds"`
	CallDuration    float64 `json:"callDurationSeconds" dynamodbav:"CallDurationSeconds"`
	Cancelled       bool    `json:"cancelled" dynamodbav:"Cancelled"`
	Escalations     int     `json:"escalations" dynamodbav:"Escalations"`
}
