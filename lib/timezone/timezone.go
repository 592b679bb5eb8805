package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Shanghai")
	if err != nil {
		panic(err)
	}
}

// force timestamps into the reporting timezone because the runners
// (GitHub Actions, random VPSes) end up in arbitrary zones which
// causes disturbances when comparing dates via <time.Time>.Year()/Month()/Day()
func Now() time.Time {
	return time.Now().In(Location)
}
