package internal

import (
	"fmt"
	"os"
	"os/exec"
)

const (
	LinuxUser       = "dahua-eventd"
	LinuxBin        = "/usr/local/bin/dahua-eventd"
	LinuxConfigFile = "/etc/dahua-eventd/config.json"
	LinuxLogDir     = "/var/log/dahua-eventd"
)

// PrepareLinuxServiceEnv creates the service user, copies the binary to
// /usr/local/bin, seeds the config directory and creates the log
// directory. Requires root.
func PrepareLinuxServiceEnv() error {
	fmt.Println("1. creating service user and group")
	if err := exec.Command("useradd", "-r", "-s", "/bin/false", LinuxUser).Run(); err != nil {
		fmt.Println("1. user not created, most likely already exists : " + err.Error())
	}

	fullBinaryPath, err := os.Executable()
	if err != nil {
		return err
	}
	fmt.Println("2. copying " + fullBinaryPath + " to " + LinuxBin)
	if err := exec.Command("cp", "-f", fullBinaryPath, LinuxBin).Run(); err != nil {
		fmt.Println("2. error copying binary : " + err.Error())
		return err
	}

	fmt.Println("3. creating config folder")
	if err := exec.Command("mkdir", "-p", "/etc/dahua-eventd").Run(); err != nil {
		fmt.Println("3. error creating config folder : " + err.Error())
		return err
	}

	if _, err := os.Stat("config.json"); !os.IsNotExist(err) {
		fmt.Println("4. copying local config file to /etc/dahua-eventd")
		if err := exec.Command("cp", "config.json", "/etc/dahua-eventd").Run(); err != nil {
			fmt.Println("4. error copying config file : " + err.Error())
			return err
		}
	} else {
		fmt.Println("4. no local config file, skipping")
	}

	fmt.Println("5. creating log directory")
	if err := exec.Command("mkdir", "-p", LinuxLogDir).Run(); err != nil {
		fmt.Println("5. error creating log directory : " + err.Error())
		return err
	}
	if err := exec.Command("chown", "-R", LinuxUser+":"+LinuxUser, LinuxLogDir).Run(); err != nil {
		fmt.Println("5. error changing owner of log directory : " + err.Error())
		return err
	}
	return nil
}

// RemoveLinuxServiceEnv reverses PrepareLinuxServiceEnv.
func RemoveLinuxServiceEnv() error {
	fmt.Println("1. removing service user and group")
	if err := exec.Command("userdel", "-r", LinuxUser).Run(); err != nil {
		fmt.Println("1. error removing user : " + err.Error())
	}
	fmt.Println("2. removing binary from /usr/local/bin")
	if err := exec.Command("rm", "-f", LinuxBin).Run(); err != nil {
		fmt.Println("2. error removing binary : " + err.Error())
	}
	fmt.Println("3. removing config file")
	if err := exec.Command("rm", "-f", LinuxConfigFile).Run(); err != nil {
		fmt.Println("3. error removing config file : " + err.Error())
	}
	fmt.Println("4. removing log directory")
	if err := exec.Command("rm", "-rf", LinuxLogDir).Run(); err != nil {
		fmt.Println("4. error removing log directory : " + err.Error())
	}
	return nil
}
