// Package app contains the core application logic of circuitgo. It loads a
// model, compiles it into a vector field and either emits the field as Go
// source or integrates it, decoupled from any specific entrypoint like a CLI.
package app
