//go:build !darwin

package speech

const defaultEngine = EngineEspeak
