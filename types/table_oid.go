package types

// TableOID identifies a table inside the lock hierarchy.
type TableOID uint32
