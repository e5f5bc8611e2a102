package caseassist

// Version is overridden at build time with -ldflags "-X github.com/a-h/caseassist.Version=...".
var Version = "devel"
