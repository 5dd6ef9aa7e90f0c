package outbox

const sessionStateChangedSchema = `{
  "type": "object",
  "title": "SessionStateChanged",
  "properties": {
    "session_id": {"type": "string"},
    "user_id": {"type": "string"},
    "from": {"type": "string"},
    "event": {"type": "string"},
    "to": {"type": "string"},
    "workout_id": {"type": "string"},
    "version": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["session_id", "user_id", "from", "event", "to", "version", "occurred_at"],
  "additionalProperties": false
}`

const planGeneratedSchema = `{
  "type": "object",
  "title": "PlanGenerated",
  "properties": {
    "user_id": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "hash": {"type": "string"},
    "recommended": {"type": "array", "items": {"type": "string"}},
    "generated_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "date", "hash", "recommended", "generated_at"],
  "additionalProperties": false
}`
