package housing

const (
	TopicApplicationEvents = "housing.application.events"
	TopicOfficerEvents     = "housing.officer.events"
)

// Partition key = applicant id (or project name for roster events), so every
// event touching one record keeps its order.
func PartitionKey(id string) []byte { return []byte(id) }
