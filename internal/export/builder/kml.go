package builder

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/photolog/backend/internal/photo"
)

const (
	kmlNamespace     = "http://www.opengis.net/kml/2.2"
	kmlContentType   = "application/vnd.google-earth.kml+xml"
	photoMarkerStyle = "photoMarker"
	cameraIconHref   = "http://maps.google.com/mapfiles/kml/shapes/camera.png"
)

// KMLBuilder emits an OGC KML 2.2 document: one placemark per record with a
// camera-icon style, grouped into folders by capture date.
type KMLBuilder struct{}

func (b *KMLBuilder) Build(input *Input) (*Artifact, error) {
	refs := make(map[string]string, len(input.Records))
	for _, r := range input.Records {
		// Standalone KML links the stored thumbnail reference; KMZ rewrites
		// these to archive-relative paths.
		if r.ThumbMediumKey != "" {
			refs[r.ID] = r.ThumbMediumKey
		} else {
			refs[r.ID] = r.BlobKey
		}
	}

	data, err := buildKMLDocument(input, refs)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Data:        data,
		ContentType: kmlContentType,
	}, nil
}

type kmlFile struct {
	XMLName  xml.Name    `xml:"kml"`
	Xmlns    string      `xml:"xmlns,attr"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name         string           `xml:"name"`
	Description  string           `xml:"description"`
	ExtendedData *kmlExtendedData `xml:"ExtendedData,omitempty"`
	Styles       []kmlStyle       `xml:"Style"`
	Folders      []kmlFolder      `xml:"Folder"`
}

type kmlStyle struct {
	ID           string           `xml:"id,attr"`
	IconStyle    *kmlIconStyle    `xml:"IconStyle,omitempty"`
	LabelStyle   *kmlLabelStyle   `xml:"LabelStyle,omitempty"`
	BalloonStyle *kmlBalloonStyle `xml:"BalloonStyle,omitempty"`
}

type kmlIconStyle struct {
	Scale string  `xml:"scale"`
	Icon  kmlIcon `xml:"Icon"`
}

type kmlIcon struct {
	Href string `xml:"href"`
}

type kmlLabelStyle struct {
	Scale string `xml:"scale"`
}

type kmlBalloonStyle struct {
	Text string `xml:"text"`
}

type kmlFolder struct {
	Name        string         `xml:"name"`
	Description string         `xml:"description"`
	Placemarks  []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name         string          `xml:"name"`
	Description  string          `xml:"description"`
	StyleURL     string          `xml:"styleUrl"`
	ExtendedData kmlExtendedData `xml:"ExtendedData"`
	Point        kmlPoint        `xml:"Point"`
}

type kmlExtendedData struct {
	Data []kmlData `xml:"Data"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type kmlPoint struct {
	Coordinates  string `xml:"coordinates"`
	AltitudeMode string `xml:"altitudeMode,omitempty"`
}

// buildKMLDocument renders the document. imageRefs maps photo id to the href
// placed in the placemark's photo_url field.
func buildKMLDocument(input *Input, imageRefs map[string]string) ([]byte, error) {
	doc := kmlDocument{
		Name: input.Title,
		Description: fmt.Sprintf("Geotagged photo export - Generated: %s",
			input.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z")),
		ExtendedData: &kmlExtendedData{
			Data: []kmlData{
				{Name: "coordinate_system", Value: "WGS84 Geographic (EPSG:4326)"},
			},
		},
		Styles: []kmlStyle{
			{
				ID: photoMarkerStyle,
				IconStyle: &kmlIconStyle{
					Scale: "1.0",
					Icon:  kmlIcon{Href: cameraIconHref},
				},
				LabelStyle: &kmlLabelStyle{Scale: "0.8"},
				BalloonStyle: &kmlBalloonStyle{
					Text: "$[name] - $[timestamp] - Camera: $[camera_info] - Tags: $[tags] - $[description]",
				},
			},
		},
	}

	// Records arrive in captured_at order, so first-seen day order is
	// already ascending.
	folderIdx := make(map[string]int)
	for _, record := range input.Records {
		day := record.CapturedAt.UTC().Format("2006-01-02")
		idx, ok := folderIdx[day]
		if !ok {
			idx = len(doc.Folders)
			folderIdx[day] = idx
			doc.Folders = append(doc.Folders, kmlFolder{
				Name: "Photos - " + day,
			})
		}
		doc.Folders[idx].Placemarks = append(doc.Folders[idx].Placemarks,
			placemarkFor(&record, imageRefs[record.ID]))
	}

	for i := range doc.Folders {
		doc.Folders[i].Description = fmt.Sprintf("%d photos taken on %s",
			len(doc.Folders[i].Placemarks),
			strings.TrimPrefix(doc.Folders[i].Name, "Photos - "))
	}

	out, err := xml.MarshalIndent(kmlFile{Xmlns: kmlNamespace, Document: doc}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal KML: %w", err)
	}

	return append([]byte(xml.Header), out...), nil
}

func placemarkFor(record *photo.Record, imageRef string) kmlPlacemark {
	var desc strings.Builder
	fmt.Fprintf(&desc, "Photo: %s\n", record.OriginalFilename)
	fmt.Fprintf(&desc, "Timestamp: %sZ\n", record.CapturedAt.UTC().Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&desc, "Size: %d bytes\n", record.FileSize)
	if info := record.CameraInfo(); info != "Unknown" {
		fmt.Fprintf(&desc, "Camera: %s\n", info)
	}
	if len(record.Tags) > 0 {
		fmt.Fprintf(&desc, "Tags: %s\n", strings.Join(record.Tags, ", "))
	}
	if record.Description != "" {
		fmt.Fprintf(&desc, "Description: %s\n", record.Description)
	}

	tags := "None"
	if len(record.Tags) > 0 {
		tags = strings.Join(record.Tags, ", ")
	}

	return kmlPlacemark{
		Name:        record.OriginalFilename,
		Description: desc.String(),
		StyleURL:    "#" + photoMarkerStyle,
		ExtendedData: kmlExtendedData{
			Data: []kmlData{
				{Name: "photo_url", Value: imageRef},
				{Name: "timestamp", Value: record.CapturedAt.UTC().Format("2006-01-02 15:04:05") + " UTC"},
				{Name: "coordinates", Value: fmt.Sprintf("%.6f, %.6f", record.Latitude, record.Longitude)},
				{Name: "camera_info", Value: record.CameraInfo()},
				{Name: "tags", Value: tags},
				{Name: "description", Value: record.Description},
			},
		},
		Point: pointFor(record),
	}
}

// pointFor renders coordinates in KML (longitude,latitude[,altitude]) order
func pointFor(record *photo.Record) kmlPoint {
	lon := strconv.FormatFloat(record.Longitude, 'f', -1, 64)
	lat := strconv.FormatFloat(record.Latitude, 'f', -1, 64)

	if record.Altitude != nil {
		alt := strconv.FormatFloat(*record.Altitude, 'f', -1, 64)
		return kmlPoint{
			Coordinates:  lon + "," + lat + "," + alt,
			AltitudeMode: "absolute",
		}
	}
	return kmlPoint{Coordinates: lon + "," + lat + ",0"}
}
