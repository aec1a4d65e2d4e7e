// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/lalrelay/pkg/logic"
	"github.com/q191201771/naza/pkg/bininfo"
)

func main() {
	confFile := parseFlag()
	confFile, _ = base.WrapReadConfigFile(confFile, logic.DefaultConfFilenameList, func() {
		_, _ = fmt.Fprintf(os.Stderr, `
Example:
  %s -c %s

Github: %s
`, os.Args[0], filepath.FromSlash("./conf/lalrelay.conf.json"), base.LalGithubSite)
	})

	if err := logic.Entry(confFile); err != nil {
		base.OsExitAndWaitPressIfWindows(1)
	}
}

func parseFlag() string {
	binInfoFlag := flag.Bool("v", false, "show bin info")
	cf := flag.String("c", "", "specify conf file, json or yaml")
	flag.Parse()
	if *binInfoFlag {
		_, _ = fmt.Fprint(os.Stderr, bininfo.StringifyMultiLine())
		_, _ = fmt.Fprintln(os.Stderr, base.LalFullInfo)
		os.Exit(0)
	}
	return *cf
}
