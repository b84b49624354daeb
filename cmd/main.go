package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kardianos/service"
	log "github.com/sirupsen/logrus"

	"github.com/edgekit/dahua-events/client"
	"github.com/edgekit/dahua-events/events"
	"github.com/edgekit/dahua-events/internal"
	"github.com/edgekit/dahua-events/monitor"
	"github.com/edgekit/dahua-events/relay"
)

var Version string

// EncryptionKey is injected at build time to unlock encrypted secrets in
// the config file.
var EncryptionKey = ""

var systemLog service.Logger
var fullConfigPath string

var eventMonitor *monitor.Monitor
var eventRelay *relay.Server

type program struct{}

func (p *program) Start(s service.Service) error {
	// Start should not block. Do the actual work async.
	go p.run()
	return nil
}

func (p *program) run() {
	systemLog.Info("----Starting dahua event monitor service-------")
	systemLog.Infof("Loading configuration from file %s", fullConfigPath)
	startEventMonitor(fullConfigPath)
}

func (p *program) Stop(s service.Service) error {
	// Stop should not block. Return within a few seconds.
	systemLog.Info("----Stopping dahua event monitor service-------")
	stopEventMonitor()
	return nil
}

func configureService() service.Service {
	svcConfig := service.Config{
		Name:        "dahua-eventd",
		DisplayName: "Dahua camera event monitor",
		Description: "Streams Dahua/Amcrest camera event notifications to local consumers",
	}
	var prg program
	appService, err := service.New(&prg, &svcConfig)
	if err != nil {
		log.Fatal(err)
	}
	systemLog, err = appService.Logger(nil)
	if err != nil {
		fmt.Printf("Error initializing system logger %s", err.Error())
	}
	return appService
}

func configureLogger(logPath, level string) {
	if level == "" {
		level = "info"
	}
	lvl, _ := log.ParseLevel(level)
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{
		DisableColors:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})
	if logPath != "" && logPath != "-" {
		logPath = filepath.Join(logPath, "dahua-eventd.log")
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
		if err != nil {
			fmt.Printf("error opening file: %v", err)
			return
		}
		log.SetOutput(f)
	}
}

func startEventMonitor(configPath string) {
	config, err := internal.LoadConfig(configPath)
	if err != nil {
		if systemLog != nil {
			systemLog.Error("Failed to load config file. Err:", err.Error())
		}
		log.Error("Failed to load config file. Err: ", err.Error())
		return
	}

	logDir := internal.GetBinaryDir()
	if config.LogDir != "" {
		logDir = config.LogDir
	}
	configureLogger(logDir, config.LogLevel)

	log.Info("Starting dahua-eventd service.")

	secretManager := internal.NewSecretManager(EncryptionKey)
	if EncryptionKey != "" {
		secretManager.LoadEncryptedSecrets(config.Secrets)
	}
	password := secretManager.GetSecret(config.Password)

	cameraClient := client.New(client.Config{
		Address:  config.CameraAddress,
		Username: config.Username,
		Password: password,
		Retries:  config.ConnectRetries,
	})
	eventClient := events.New(cameraClient)

	eventMonitor = monitor.New(eventClient, monitor.Config{
		EventCodes:     config.EventCodes,
		ConnectRetries: config.ConnectRetries,
	})
	if err := eventMonitor.Start(); err != nil {
		log.Error("Failed to start event monitor. Err: ", err.Error())
		return
	}

	if config.RelayBindAddress != "" {
		eventRelay = relay.NewServer(eventMonitor, config.RelayBindAddress)
		if err := eventRelay.Start(); err != nil {
			log.Error("Failed to start event relay. Err: ", err.Error())
		}
	}
}

func stopEventMonitor() {
	if eventRelay != nil {
		eventRelay.Stop()
	}
	if eventMonitor != nil {
		eventMonitor.Stop()
	}
}

func main() {
	log.Infof("----- Starting dahua-eventd - version = %s ----------", Version)

	mainConfigPath := flag.String("config", "config.json", "Full path to main configuration file")
	base64encodedConfig := flag.String("bconfig", "", "Base64 encoded config")
	op := flag.String("op", "", "Supported operations : 'gen_config,encrypt_secret,install,uninstall,prepare_linux_env,run' ")
	textToEncrypt := flag.String("secret", "", "Secret to encrypt")
	flag.Parse()

	if *mainConfigPath == "config.json" {
		*mainConfigPath = filepath.Join(internal.GetBinaryDir(), *mainConfigPath)
	}
	fullConfigPath = *mainConfigPath

	// Whole configuration can be passed as one base64 encoded string.
	if *base64encodedConfig != "" {
		log.Info("Loading configuration from cmd line parameter")
		body, err := base64.StdEncoding.DecodeString(*base64encodedConfig)
		if err != nil {
			log.Errorf("Error decoding base64 encoded config: %s ", err.Error())
			return
		}
		os.WriteFile("config.json", body, 0644)
	}

	if EncryptionKey != "" {
		log.Info("Encryption key is set. Encrypted secrets in config will be decrypted.")
	}

	switch *op {
	case "gen_config":
		log.Info("Generating config file")
		config := internal.StaticConfig{
			CameraAddress: "http://192.168.1.108",
			Username:      "admin",
			EventCodes:    []string{"VideoMotion", "AlarmLocal"},
		}
		body, _ := json.MarshalIndent(&config, " ", "  ")
		os.WriteFile("config.json", body, 0644)
	case "version":
		fmt.Println(Version)
	case "encrypt_secret":
		if EncryptionKey == "" {
			fmt.Println("Please provide encryption key")
			return
		}
		if *textToEncrypt == "" {
			fmt.Println("Please provide text to encrypt")
			return
		}
		encrypted, err := internal.EncryptString(EncryptionKey, *textToEncrypt)
		if err != nil {
			fmt.Println("Failed to encrypt string. Err:", err.Error())
			return
		}
		fmt.Println("Encrypted string : ", encrypted)
	case "prepare_linux_env":
		if err := internal.PrepareLinuxServiceEnv(); err != nil {
			fmt.Println("Failed to prepare service environment. Err:", err.Error())
		}
	case "install":
		log.Info("Installing dahua-eventd service")
		appService := configureService()
		if err := appService.Install(); err != nil {
			log.Error("Failed to install service. Make sure you run installation as system administrator. Err: ", err.Error())
		} else if err = appService.Start(); err != nil {
			log.Error("Failed to run service. Err: ", err.Error())
		}
	case "uninstall":
		log.Info("Uninstalling dahua-eventd service")
		appService := configureService()
		if err := appService.Uninstall(); err != nil {
			log.Error("Failed to uninstall service. Err: ", err.Error())
		}
	case "run":
		// Start from CLI without the OS service supervisor.
		startEventMonitor(*mainConfigPath)
		select {}
	default:
		appService := configureService()
		if err := appService.Run(); err != nil {
			log.Error(err)
		}
	}
}
