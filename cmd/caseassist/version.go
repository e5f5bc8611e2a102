package main

import (
	"context"
	"fmt"

	"github.com/a-h/caseassist"
)

type VersionCommand struct {
}

func (c VersionCommand) Run(ctx context.Context) (err error) {
	fmt.Println(caseassist.Version)
	return nil
}
