package snapshot

import (
	"fmt"

	"github.com/graymeta/stow"

	//Load drivers
	"github.com/graymeta/stow/azure"  //Azure storage
	"github.com/graymeta/stow/b2"     //Backblaze storage
	"github.com/graymeta/stow/google" //Google storage
	"github.com/graymeta/stow/local"  //local storage
	"github.com/graymeta/stow/oracle" //oracle storage
	"github.com/graymeta/stow/s3"     //s3 storage
	"github.com/graymeta/stow/sftp"   //sftp storage
	"github.com/graymeta/stow/swift"  //swift storage
)

//Object store (stow.Location) kinds snapshots can be pushed to
const (
	KindAzure               = azure.Kind
	KindBackBlazeB2         = b2.Kind
	KindGoogleCloudStorage  = google.Kind
	KindLocal               = local.Kind
	KindS3                  = s3.Kind
	KindOracleObjectStorage = oracle.Kind
	KindSFTP                = sftp.Kind
	KindSwift               = swift.Kind
)

//Kinds lists every supported object store kind
func Kinds() []string {
	return []string{KindAzure, KindBackBlazeB2, KindGoogleCloudStorage, KindLocal, KindS3, KindOracleObjectStorage, KindSFTP, KindSwift}
}

//SupportsMetaData returns false for object store kinds that cannot keep item
// metadata, compressed snapshots need it
func SupportsMetaData(kind string) bool {
	switch kind {
	case KindLocal, KindSFTP:
		return false
	}
	return true
}

//Dial validates config and connects to an object store of the provided kind
func Dial(kind string, config stow.Config) (stow.Location, error) {
	if err := stow.Validate(kind, config); err != nil {
		return nil, fmt.Errorf("Invalid %s object store configuration: %w", kind, err)
	}
	loc, err := stow.Dial(kind, config)
	if err != nil {
		return nil, fmt.Errorf("Could not connect to %s object store: %w", kind, err)
	}
	return loc, nil
}

//OpenContainer returns the named container, creating it if it can not be found
func OpenContainer(loc stow.Location, name string) (stow.Container, error) {
	container, lookupErr := loc.Container(name)
	if lookupErr == nil {
		return container, nil
	}

	container, err := loc.CreateContainer(name)
	if err != nil {
		return nil, fmt.Errorf("Could not create container %q (lookup: %s): %w", name, lookupErr, err)
	}
	return container, nil
}

func describeContainer(container stow.Container) string {
	return fmt.Sprintf("remote container %q (%q)", container.ID(), container.Name())
}

func describeItem(item stow.Item) string {
	return fmt.Sprintf("remote object %q (%q at %q)", item.ID(), item.Name(), item.URL())
}
