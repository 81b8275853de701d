package windowsapi

import (
	"fmt"

	"golang.org/x/sys/windows/registry"

	"gameboost/internal/primitive"
)

func rootKey(root primitive.Root) (registry.Key, bool) {
	switch root {
	case primitive.LocalMachine:
		return registry.LOCAL_MACHINE, true
	case primitive.CurrentUser:
		return registry.CURRENT_USER, true
	default:
		return 0, false
	}
}

func openKey(op primitive.Op, root primitive.Root, path, target string, access uint32) (registry.Key, error) {
	hive, ok := rootKey(root)
	if !ok {
		return 0, primitive.Fail(op, target, primitive.ReasonUnsupported, fmt.Errorf("unknown hive %q", root))
	}
	k, err := registry.OpenKey(hive, path, access|registry.WOW64_64KEY)
	if err != nil {
		return 0, primitive.Fail(op, target, reasonFor(err), err)
	}
	return k, nil
}

func readValue(key primitive.RegistryKey) (primitive.Value, error) {
	target := key.String()
	k, err := openKey(primitive.OpReadValue, key.Root, key.Path, target, registry.QUERY_VALUE)
	if err != nil {
		return primitive.Value{}, err
	}
	defer k.Close()

	_, valType, err := k.GetValue(key.Name, nil)
	if err != nil {
		return primitive.Value{}, primitive.Fail(primitive.OpReadValue, target, reasonFor(err), err)
	}

	switch valType {
	case registry.DWORD:
		n, _, err := k.GetIntegerValue(key.Name)
		if err != nil {
			return primitive.Value{}, primitive.Fail(primitive.OpReadValue, target, reasonFor(err), err)
		}
		return primitive.DWord(uint32(n)), nil
	case registry.SZ, registry.EXPAND_SZ:
		// GetStringValue leaves %VAR% references unexpanded.
		s, _, err := k.GetStringValue(key.Name)
		if err != nil {
			return primitive.Value{}, primitive.Fail(primitive.OpReadValue, target, reasonFor(err), err)
		}
		if valType == registry.EXPAND_SZ {
			return primitive.ExpandString(s), nil
		}
		return primitive.String(s), nil
	default:
		return primitive.Value{}, primitive.Fail(primitive.OpReadValue, target, primitive.ReasonUnsupported,
			fmt.Errorf("registry type %d", valType))
	}
}

// writeValue only writes into an existing key. A missing key path fails
// with ReasonNotFound; revert deletes values, never keys.
func writeValue(key primitive.RegistryKey, v primitive.Value) error {
	target := key.String()
	k, err := openKey(primitive.OpWriteValue, key.Root, key.Path, target, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer k.Close()

	switch v.Kind {
	case primitive.KindDWord:
		err = k.SetDWordValue(key.Name, v.Number)
	case primitive.KindExpandString:
		err = k.SetExpandStringValue(key.Name, v.Text)
	default:
		err = k.SetStringValue(key.Name, v.Text)
	}
	if err != nil {
		return primitive.Fail(primitive.OpWriteValue, target, reasonFor(err), err)
	}
	return nil
}

func deleteValue(key primitive.RegistryKey) error {
	target := key.String()
	k, err := openKey(primitive.OpDeleteValue, key.Root, key.Path, target, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer k.Close()

	if err := k.DeleteValue(key.Name); err != nil {
		return primitive.Fail(primitive.OpDeleteValue, target, reasonFor(err), err)
	}
	return nil
}

func subKeys(root primitive.Root, path string) ([]string, error) {
	target := string(root) + `\` + path
	k, err := openKey(primitive.OpListSubKeys, root, path, target, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return nil, err
	}
	defer k.Close()

	names, err := k.ReadSubKeyNames(0)
	if err != nil {
		return nil, primitive.Fail(primitive.OpListSubKeys, target, reasonFor(err), err)
	}
	return names, nil
}
