package version

import "strconv"

// Name is the application name shown on the status screens.
const Name = "bildkadro"

type Version struct {
	MajorNumber int64
	MinorNumber int64
	PatchNumber int64
}

// String generate a human readable Version
func (m *Version) String() string {
	return strconv.FormatInt(m.MajorNumber, 10) + "." + strconv.FormatInt(m.MinorNumber, 10) + "." + strconv.FormatInt(m.PatchNumber, 10)
}

// UserAgent is sent with every manifest and image request.
func UserAgent() string {
	return Name + "/" + AppVersion.String()
}

var (
	AppVersion = Version{
		MajorNumber: 1,
		MinorNumber: 2,
		PatchNumber: 0,
	}
)
