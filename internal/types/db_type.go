package types

// DBType defines the type of database used for the state store.
type DBType string

const (
	Postgres DBType = "postgres"
	SQLite   DBType = "sqlite"
	None     DBType = "none"
)
