//go:build !windows

package windowsapi

import (
	"errors"

	"gameboost/internal/primitive"
)

var errNotWindows = errors.New("requires windows")

func unsupported(op primitive.Op, target string) error {
	return primitive.Fail(op, target, primitive.ReasonUnsupported, errNotWindows)
}

func processSnapshot() ([]primitive.ProcessInfo, error) {
	return nil, unsupported(primitive.OpSnapshot, "")
}

func suspendProcess(pid uint32) error  { return unsupported(primitive.OpSuspend, pidTarget(pid)) }
func resumeProcess(pid uint32) error   { return unsupported(primitive.OpResume, pidTarget(pid)) }
func emptyWorkingSet(pid uint32) error { return unsupported(primitive.OpTrimWorkingSet, pidTarget(pid)) }

func readValue(key primitive.RegistryKey) (primitive.Value, error) {
	return primitive.Value{}, unsupported(primitive.OpReadValue, key.String())
}

func writeValue(key primitive.RegistryKey, _ primitive.Value) error {
	return unsupported(primitive.OpWriteValue, key.String())
}

func deleteValue(key primitive.RegistryKey) error {
	return unsupported(primitive.OpDeleteValue, key.String())
}

func subKeys(root primitive.Root, path string) ([]string, error) {
	return nil, unsupported(primitive.OpListSubKeys, string(root)+`\`+path)
}

func activePowerPlan() (string, error) { return "", unsupported(primitive.OpActivePowerPlan, "") }
func setPowerPlan(id string) error     { return unsupported(primitive.OpSetPowerPlan, id) }
