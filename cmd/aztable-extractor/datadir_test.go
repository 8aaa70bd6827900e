package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/tableclient"
	"github.com/ajitpratap0/aztable-extractor/pkg/testutil"
)

type DatadirTestSuite struct {
	testutil.DataDirSuite
}

func TestDatadir(t *testing.T) {
	suite.Run(t, new(DatadirTestSuite))
}

func (s *DatadirTestSuite) run(client tableclient.Client) error {
	withClient(s.T(), client)
	cmd := newRootCmd(&bytes.Buffer{})
	cmd.SetArgs([]string{"--data-dir", s.DataDir(), "--log-level", "error"})
	return cmd.ExecuteContext(s.Context())
}

func (s *DatadirTestSuite) TestRawExport() {
	s.WriteConfig(`{"parameters":{"db":{"#connectionString":"conn"},"table":"numbers","output":"numbers","mode":"raw"}}`)
	client := tableclient.NewMemory().AddTable("numbers", testutil.Pages(testutil.Rows("p", 0, 5), 2)...)

	s.Require().NoError(s.run(client))
	s.Equal([]string{"numbers.csv", "numbers.csv.manifest"}, s.TableFiles())

	rows := s.ReadTable("numbers.csv")
	s.Require().Len(rows, 5)
	s.Equal([]string{"p", "0000", `{"PartitionKey":"p","RowKey":"0000","Index":0,"Index@odata.type":"Edm.Int32"}`}, rows[0])
	s.Equal("0004", rows[4][1])
	s.Empty(s.OutputState())
}

func (s *DatadirTestSuite) TestLimit() {
	s.WriteConfig(`{"parameters":{"db":{"#connectionString":"conn"},"table":"numbers","output":"numbers","mode":"raw","limit":3}}`)
	client := tableclient.NewMemory().AddTable("numbers", testutil.Pages(testutil.Rows("p", 0, 10), 2)...)

	s.Require().NoError(s.run(client))
	s.Len(s.ReadTable("numbers.csv"), 3)
}

func (s *DatadirTestSuite) TestIncrementalFetching() {
	s.WriteConfig(`{"parameters":{"db":{"#connectionString":"conn"},"table":"numbers","output":"numbers","mode":"raw",
		"incrementalFetchingKey":"Index"}}`)
	s.WriteInputState(`{"maxIncrementalKey":"Index","maxIncrementalValue":2,"maxIncrementalValueType":"Edm.Int32"}`)
	client := tableclient.NewMemory().AddTable("numbers", testutil.Pages(testutil.Rows("p", 2, 4), 3)...)

	s.Require().NoError(s.run(client))
	s.Equal("Index ge 2", client.Calls()[0].Query.Filter)
	s.JSONEq(`{"maxIncrementalKey":"Index","maxIncrementalValue":5,"maxIncrementalValueType":"Edm.Int32"}`, s.OutputState())
}

func (s *DatadirTestSuite) TestMappingWithNestedTable() {
	s.WriteConfig(`{"parameters":{"db":{"#connectionString":"conn"},"table":"orders","output":"orders","mapping":{
		"RowKey":{"type":"column","mapping":{"destination":"id","primaryKey":true}},
		"Items":{"type":"table","destination":"order-items","parentKey":{"destination":"order_id"},
			"tableMapping":{"sku":"sku","qty":"qty"}}}}}`)
	client := tableclient.NewMemory().AddTable("orders", []*entity.Entity{
		entity.MustDecode(`{"PartitionKey":"p","RowKey":"o1","Items":[{"sku":"a","qty":1},{"sku":"b","qty":2}]}`),
		entity.MustDecode(`{"PartitionKey":"p","RowKey":"o2","Items":[]}`),
	})

	s.Require().NoError(s.run(client))
	s.Equal([]string{"order-items.csv", "order-items.csv.manifest", "orders.csv", "orders.csv.manifest"}, s.TableFiles())
	s.Equal([][]string{{"o1"}, {"o2"}}, s.ReadTable("orders.csv"))
	s.Equal([][]string{{"a", "1", "o1"}, {"b", "2", "o1"}}, s.ReadTable("order-items.csv"))
}

func (s *DatadirTestSuite) TestEmptyTable() {
	s.WriteConfig(`{"parameters":{"db":{"#connectionString":"conn"},"table":"empty","output":"empty","mode":"raw",
		"incrementalFetchingKey":"Index"}}`)
	state := `{"maxIncrementalKey":"Index","maxIncrementalValue":7,"maxIncrementalValueType":"Edm.Int32"}`
	s.WriteInputState(state)

	s.Require().NoError(s.run(tableclient.NewMemory().AddTable("empty")))
	s.Empty(s.TableFiles())
	s.JSONEq(state, s.OutputState())
}

func (s *DatadirTestSuite) TestTimestampsAreMasked() {
	s.Equal(`"***",1`, testutil.MaskTimestamps(`"2021-03-04T10:11:12.1234567Z",1`))
}
