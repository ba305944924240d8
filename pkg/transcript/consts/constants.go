package consts

const (
	// DefaultDBName is the default database name.
	DefaultDBName = "agrilab"

	// TableNameTurns is the default table/collection name for transcript turns.
	TableNameTurns = "turns"

	// Column names
	ColSessionID  = "session_id"
	ColRole       = "role"
	ColContent    = "content"
	ColToolCalls  = "tool_calls"
	ColToolCallID = "tool_call_id"
	ColError      = "error"
	ColCreatedAt  = "created_at"

	// Neo4j specific
	LabelSession = "Session"
	LabelTurn    = "Turn"
	RelHasTurn   = "HAS_TURN"
)
