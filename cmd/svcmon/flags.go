package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags select a running daemon instead of local state.
type APIFlags struct {
	APIUrl      string
	APITimeout  time.Duration
	APIInsecure bool
}

type SweepFlags struct {
	ConfigPath string
	JSON       bool
	APIFlags
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

type StatusFlags struct {
	ConfigPath string
	JSON       bool
	APIFlags
}

type CheckFlags struct {
	ConfigPath string
	Process    string
	PIDFile    string
	JSON       bool
}

type CronFlags struct {
	ConfigPath string
	Binary     string
	Schedule   string
}
