package session

import (
	"gameboost/internal/primitive"
)

// Registry locations touched by the network and gpu_priority features.
const (
	tcpipInterfaces = `SYSTEM\CurrentControlSet\Services\Tcpip\Parameters\Interfaces`
	netbtInterfaces = `SYSTEM\CurrentControlSet\Services\NetBT\Parameters\Interfaces`
	dnsClientPolicy = `SOFTWARE\Policies\Microsoft\Windows NT\DNSClient`
	gamesTask       = `SOFTWARE\Microsoft\Windows NT\CurrentVersion\Multimedia\SystemProfile\Tasks\Games`
	graphicsDrivers = `SYSTEM\CurrentControlSet\Control\GraphicsDrivers`
)

// NetBIOS over TCP/IP disabled.
const netbiosDisabled = 2

func registryTweak(f Feature, path, name string, v primitive.Value) Tweak {
	return Tweak{
		Kind:    KindRegistryValue,
		Feature: f,
		Key:     primitive.RegistryKey{Root: primitive.LocalMachine, Path: path, Name: name},
		Value:   v,
	}
}

// networkTweaks expands the network feature into per-interface registry
// targets. Interfaces that cannot be listed are reported as warnings; the
// DNS policy target is always included.
func networkTweaks(browser primitive.KeyBrowser) ([]Tweak, []Warning) {
	var (
		tweaks   []Tweak
		warnings []Warning
	)

	type dword struct {
		name  string
		value uint32
	}
	perInterface := []struct {
		base   string
		values []dword
	}{
		{tcpipInterfaces, []dword{{"TcpAckFrequency", 1}, {"TcpNoDelay", 1}}},
		{netbtInterfaces, []dword{{"NetbiosOptions", netbiosDisabled}}},
	}

	for _, group := range perInterface {
		target := string(primitive.LocalMachine) + `\` + group.base
		if browser == nil {
			warnings = append(warnings, newWarning(FeatureNetwork, target,
				primitive.Fail(primitive.OpListSubKeys, target, primitive.ReasonUnsupported, nil)))
			continue
		}
		ifaces, err := retryValue(func() ([]string, error) { return browser.SubKeys(primitive.LocalMachine, group.base) })
		if err != nil {
			warnings = append(warnings, newWarning(FeatureNetwork, target, err))
			continue
		}
		for _, iface := range ifaces {
			for _, d := range group.values {
				tweaks = append(tweaks, registryTweak(FeatureNetwork, group.base+`\`+iface, d.name, primitive.DWord(d.value)))
			}
		}
	}

	tweaks = append(tweaks, registryTweak(FeatureNetwork, dnsClientPolicy, "EnableMulticast", primitive.DWord(0)))
	return tweaks, warnings
}

// gpuTweaks raises the multimedia scheduler priority of the Games task and
// enables hardware-accelerated GPU scheduling.
func gpuTweaks() []Tweak {
	return []Tweak{
		registryTweak(FeatureGPUPriority, gamesTask, "GPU Priority", primitive.DWord(8)),
		registryTweak(FeatureGPUPriority, gamesTask, "Priority", primitive.DWord(6)),
		registryTweak(FeatureGPUPriority, gamesTask, "Scheduling Category", primitive.String("High")),
		registryTweak(FeatureGPUPriority, gamesTask, "SFIO Priority", primitive.String("High")),
		registryTweak(FeatureGPUPriority, graphicsDrivers, "HwSchMode", primitive.DWord(2)),
	}
}

// powerPlanTweak requests scheme id as the active power plan.
func powerPlanTweak(id string) Tweak {
	return Tweak{
		Kind:    KindPowerPlan,
		Feature: FeaturePowerPlan,
		Value:   primitive.String(primitive.NormalizePlanID(id)),
	}
}
