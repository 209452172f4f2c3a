package system

import (
	"bufio"
	"os"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Info is a snapshot of the host used by the status command
type Info struct {
	GoOS      string
	OS        string
	OSVersion string
	Hostname  string
	CPUs      int
}

// GetInfo retrieves and parses the host information
func GetInfo() *Info {
	osName, osVer := readOsReleaseNameVersion(osReleasePath)
	hostname, _ := os.Hostname()

	return &Info{
		GoOS:      runtime.GOOS,
		OS:        osName,
		OSVersion: osVer,
		Hostname:  hostname,
		CPUs:      runtime.NumCPU(),
	}
}

func readOsReleaseNameVersion(path string) (osName string, osVer string) {
	file, err := os.Open(path)
	if err != nil {
		log.Warnf("failed to open file %s: %s", path, err)
		return "", ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "NAME=") {
			osName = strings.ReplaceAll(strings.Split(line, "=")[1], "\"", "")
			continue
		}
		if strings.HasPrefix(line, "VERSION_ID=") {
			osVer = strings.ReplaceAll(strings.Split(line, "=")[1], "\"", "")
			continue
		}

		if osName != "" && osVer != "" {
			break
		}
	}
	return
}

func readOsReleaseIDs(path string) (id string, idLike string) {
	file, err := os.Open(path)
	if err != nil {
		log.Warnf("failed to open file %s: %s", path, err)
		return "", ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "ID=") {
			id = strings.ReplaceAll(strings.TrimPrefix(line, "ID="), "\"", "")
			continue
		}
		if strings.HasPrefix(line, "ID_LIKE=") {
			idLike = strings.ReplaceAll(strings.TrimPrefix(line, "ID_LIKE="), "\"", "")
		}
	}
	return
}
