package system

import "fmt"

var Name = "api-catalog"
var Version = "<unset>"
var Commit = "<unset>"
var Repository = "https://github.com/telekom/api-catalog"

func PrettyInfo() string {
	return fmt.Sprintf(`
===========================================================================
Application: %s
Version %s
GOTO: %s/tree/%s
===========================================================================
`, Name, Version, Repository, Commit)
}
