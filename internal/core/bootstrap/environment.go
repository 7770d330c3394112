package bootstrap

import (
	"os"
	"strings"
)

// ContainerRuntime represents specific container runtime
type ContainerRuntime string

const (
	RuntimeNone       ContainerRuntime = "none"
	RuntimeDocker     ContainerRuntime = "docker"
	RuntimeKubernetes ContainerRuntime = "kubernetes"
	RuntimePodman     ContainerRuntime = "podman"
)

// fsProbe abstracts the filesystem and environment reads so tests can fake
// a container
type fsProbe struct {
	stat    func(path string) bool
	read    func(path string) string
	getenv  func(key string) string
	cgroups string
}

var hostProbe = fsProbe{
	stat: func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	},
	read:    readFileSafe,
	getenv:  os.Getenv,
	cgroups: "/proc/1/cgroup",
}

// DetectEnvironment gathers evidence about the container runtime. Multicast
// discovery only reaches the camera LAN from a container that shares the
// host network.
func DetectEnvironment() []Evidence {
	return detectEnvironment(hostProbe)
}

func detectEnvironment(p fsProbe) []Evidence {
	var evidence []Evidence

	if p.getenv("KUBERNETES_SERVICE_HOST") != "" {
		evidence = append(evidence, NewEvidence(
			CategoryEnvironment, "container_runtime", string(RuntimeKubernetes),
			0.95, "env", "KUBERNETES_SERVICE_HOST set",
		))
	}
	if p.stat("/run/.containerenv") {
		evidence = append(evidence, NewEvidence(
			CategoryEnvironment, "container_runtime", string(RuntimePodman),
			0.95, "filesystem", "/run/.containerenv exists",
		))
	}
	if p.stat("/.dockerenv") {
		evidence = append(evidence, NewEvidence(
			CategoryEnvironment, "container_runtime", string(RuntimeDocker),
			0.95, "filesystem", "/.dockerenv exists",
		))
	}
	if cgroup := p.read(p.cgroups); cgroup != "" {
		switch {
		case strings.Contains(cgroup, "kubepods"):
			evidence = append(evidence, NewEvidence(
				CategoryEnvironment, "container_runtime", string(RuntimeKubernetes),
				0.90, "procfs", "/proc/1/cgroup contains 'kubepods'",
			))
		case strings.Contains(cgroup, "docker-") || strings.Contains(cgroup, "/docker/"):
			evidence = append(evidence, NewEvidence(
				CategoryEnvironment, "container_runtime", string(RuntimeDocker),
				0.90, "procfs", "/proc/1/cgroup contains 'docker'",
			))
		}
	}

	containerized := len(evidence) > 0
	if !containerized {
		evidence = append(evidence, NewEvidence(
			CategoryEnvironment, "container_runtime", string(RuntimeNone),
			0.70, "inference", "no container markers found",
		))
	}
	evidence = append(evidence, NewEvidence(
		CategoryEnvironment, "containerized", containerized,
		0.90, "inference", "derived from container_runtime evidence",
	))
	return evidence
}

func readFileSafe(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
