package busclient

// ObjectPath is a DBus object path, e.g.
// "/xyz/openbmc_project/sensors/temperature/cpu".
//
// This package does no validation of path syntax: paths arrive
// already-validated from introspection or from the ObjectMapper, and
// are otherwise opaque keys used to address calls.
type ObjectPath string
